package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/models"
)

// RatelimitSource loads and seeds stored route rates.
type RatelimitSource interface {
	Get(ctx context.Context, key string) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// Reload reads every route's rate from the source. Routes with no stored row
// are seeded with their default; unreadable or invalid rows keep the current rate.
func (l *RateLimiter) Reload(ctx context.Context) {
	if l.source == nil {
		return
	}
	for route, defaultRate := range models.DefaultRatelimits {
		cfg, err := l.source.Get(ctx, route)
		if err != nil {
			l.log.Warn("failed_to_load_ratelimit_config_keeping_current",
				zap.String("route", route),
				zap.Error(err),
			)
			continue
		}
		if cfg == nil || cfg.Rate == "" {
			if err := l.source.Set(ctx, &models.RatelimitConfig{ConfigKey: route, Rate: defaultRate}); err != nil {
				l.log.Error("failed_to_save_default_ratelimit_config",
					zap.String("route", route),
					zap.String("default_rate", defaultRate),
					zap.Error(err),
				)
			}
			continue
		}

		rate, err := ParseRate(cfg.Rate)
		if err != nil {
			l.log.Error("failed_to_parse_rate_limit_keeping_current",
				zap.String("route", route),
				zap.String("rate_str", cfg.Rate),
				zap.Error(err),
			)
			continue
		}

		l.mu.Lock()
		prev := l.rates[route]
		l.rates[route] = rate
		l.mu.Unlock()
		if prev.Limit != rate.Limit || prev.Period != rate.Period {
			l.log.Info("rate_limit_updated",
				zap.String("route", route),
				zap.String("rate", cfg.Rate),
			)
		}
	}
}

// Start reloads once and then every interval until ctx is cancelled. A
// non-positive interval only performs the initial load.
func (l *RateLimiter) Start(ctx context.Context) {
	l.Reload(ctx)
	if l.interval <= 0 {
		return
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Reload(ctx)
		}
	}
}
