package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// dlqPurgeTimeout bounds a single pass over the dead-letter queue.
const dlqPurgeTimeout = 2 * time.Minute

// GarbageCollector drops dead-lettered training jobs once they are older than
// retention, so failed intents stay inspectable for a while without growing
// the DLQ forever.
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a collector. A nil purger makes every pass a no-op.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, log *zap.Logger) *GarbageCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &GarbageCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    log,
	}
}

// Run purges once immediately and then every interval until ctx ends. It
// returns nil on cancellation; failed passes are logged and retried on the
// next tick.
func (gc *GarbageCollector) Run(ctx context.Context) error {
	if gc.interval <= 0 {
		return errors.New("dlq gc interval must be positive")
	}

	var total int
	pass := func() {
		n, err := gc.collect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				gc.logger.Warn("dlq_gc_failed", zap.Error(err))
			}
			return
		}
		total += n
	}

	pass()
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			gc.logger.Debug("dlq_gc_stopped", zap.Int("purged_total", total))
			return nil
		case <-ticker.C:
			pass()
		}
	}
}

// collect performs one purge pass and returns how many jobs were dropped.
func (gc *GarbageCollector) collect(ctx context.Context) (int, error) {
	if gc.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dlqPurgeTimeout)
	defer cancel()

	n, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return 0, fmt.Errorf("purge dead-lettered jobs: %w", err)
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged", zap.Int("count", n), zap.Duration("retention", gc.retention))
	}
	return n, nil
}
