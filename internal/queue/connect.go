package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultConnectAttempts bounds how often Connect dials the broker.
	DefaultConnectAttempts = 10
	initialConnectDelay    = 2 * time.Second
	maxConnectDelay        = 30 * time.Second
)

// Connect dials RabbitMQ with exponential backoff to ride out broker startup
// delays. It returns the last dial error once attempts are used up or ctx ends.
func Connect(ctx context.Context, amqpURL string, attempts int, log *zap.Logger) (*RabbitMQQueue, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		q, err := NewRabbitMQQueue(amqpURL, log)
		if err == nil {
			log.Info("connected_to_rabbitmq", zap.Int("attempt", attempt+1))
			return q, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := connectDelay(attempt)
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", attempts),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func connectDelay(attempt int) time.Duration {
	delay := initialConnectDelay << uint(attempt)
	if delay > maxConnectDelay || delay <= 0 {
		return maxConnectDelay
	}
	return delay
}
