package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/models"
)

const (
	// DefaultCleanupInterval is how often expired sessions are swept.
	DefaultCleanupInterval = 60 * time.Minute
	// DefaultHighWaterMark is the active-session count above which a pass warns.
	DefaultHighWaterMark int64 = 1000
)

// SessionMaintainer is the part of the session manager the scheduler drives.
type SessionMaintainer interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
	GetSessionStatistics(ctx context.Context) (*models.SessionStatistics, error)
}

// CleanupResult describes one cleanup pass.
type CleanupResult struct {
	Cleaned    int64                     `json:"cleaned"`
	Statistics *models.SessionStatistics `json:"statistics"`
	RanAt      time.Time                 `json:"ranAt"`
	Duration   time.Duration             `json:"durationNs"`
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Running     bool       `json:"running"`
	Interval    string     `json:"interval"`
	LastRun     *time.Time `json:"lastRun"`
	LastCleaned int64      `json:"lastCleaned"`
	LastError   string     `json:"lastError,omitempty"`
}

// CleanupScheduler periodically deactivates expired sessions. It is owned by
// the process that creates it; Start and Stop may be called from any goroutine.
type CleanupScheduler struct {
	sessions      SessionMaintainer
	interval      time.Duration
	highWaterMark int64
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	passMu      sync.Mutex // serializes passes between the loop and ForceCleanup
	lastRun     *time.Time
	lastCleaned int64
	lastErr     error
}

// NewCleanupScheduler creates a stopped scheduler. Non-positive interval and
// high-water mark fall back to the defaults.
func NewCleanupScheduler(sessions SessionMaintainer, interval time.Duration, highWaterMark int64, log *zap.Logger) *CleanupScheduler {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if highWaterMark <= 0 {
		highWaterMark = DefaultHighWaterMark
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupScheduler{
		sessions:      sessions,
		interval:      interval,
		highWaterMark: highWaterMark,
		logger:        log,
	}
}

// Start runs one pass immediately and then one per interval until Stop is
// called or ctx ends. Starting a running scheduler only logs a warning.
func (s *CleanupScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("cleanup_scheduler_already_running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)
	s.logger.Info("cleanup_scheduler_started", zap.Duration("interval", s.interval))
}

func (s *CleanupScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	_, _ = s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.runPass(ctx)
		}
	}
}

// Stop halts the loop and waits for an in-flight pass to finish. Stopping a
// stopped scheduler does nothing.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("cleanup_scheduler_stopped")
}

// ForceCleanup runs one pass now, independent of the schedule.
func (s *CleanupScheduler) ForceCleanup(ctx context.Context) (*CleanupResult, error) {
	s.logger.Info("cleanup_forced")
	return s.runPass(ctx)
}

// Status reports whether the loop is running and the outcome of the last pass.
func (s *CleanupScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	s.passMu.Lock()
	defer s.passMu.Unlock()
	st := SchedulerStatus{
		Running:     running,
		Interval:    s.interval.String(),
		LastCleaned: s.lastCleaned,
	}
	if s.lastRun != nil {
		at := *s.lastRun
		st.LastRun = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *CleanupScheduler) runPass(ctx context.Context) (*CleanupResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	start := time.Now()
	result, err := s.pass(ctx)
	now := start.UTC()
	s.lastRun = &now
	s.lastErr = err
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("cleanup_failed", zap.Error(err))
		}
		return nil, err
	}
	result.RanAt = now
	result.Duration = time.Since(start)
	s.lastCleaned = result.Cleaned
	return result, nil
}

func (s *CleanupScheduler) pass(ctx context.Context) (*CleanupResult, error) {
	cleaned, err := s.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.sessions.GetSessionStatistics(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("cleanup_completed",
		zap.Int64("sessions_cleaned", cleaned),
		zap.Int64("active_sessions", stats.ActiveSessions),
		zap.Int64("total_sessions", stats.TotalSessions),
	)
	if stats.ActiveSessions > s.highWaterMark {
		s.logger.Warn("high_active_session_count",
			zap.Int64("active_sessions", stats.ActiveSessions),
			zap.Int64("high_water_mark", s.highWaterMark),
		)
	}
	if stats.CleanupNeeded && cleaned == 0 {
		s.logger.Warn("cleanup_needed_but_nothing_cleaned",
			zap.Int64("expired_sessions", stats.ExpiredSessions),
		)
	}
	return &CleanupResult{Cleaned: cleaned, Statistics: stats}, nil
}
