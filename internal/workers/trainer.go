package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/queue"
	"github.com/benvon/medvax-chat/internal/services/nlu"
)

// IntentTrainer processes intent training jobs
type IntentTrainer struct {
	trainer  nlu.IntentTrainer
	jobQueue queue.Enqueuer // For re-enqueueing jobs with delays
	logger   *zap.Logger
	now      func() time.Time
}

// NewIntentTrainer creates a new intent training worker. jobQueue may be nil,
// in which case throttled jobs are requeued without delay.
func NewIntentTrainer(trainer nlu.IntentTrainer, jobQueue queue.Enqueuer, log *zap.Logger) *IntentTrainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntentTrainer{trainer: trainer, jobQueue: jobQueue, logger: log, now: time.Now}
}

// ProcessJob processes a job based on its type and settles the message.
func (w *IntentTrainer) ProcessJob(ctx context.Context, msg queue.Delivery) error {
	job := msg.GetJob()

	if job.NotBefore != nil {
		if wait := job.NotBefore.Sub(w.now()); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				_ = msg.Nack(true)
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	switch job.Type {
	case queue.JobTypeTrainIntent:
		if job.Intent == nil {
			_ = msg.Nack(false)
			return errors.New("train intent job has no intent")
		}
		res, err := w.trainer.CreateIntent(ctx, job.Intent)
		if err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		w.logger.Info("intent_trained",
			zap.String("job_id", job.ID.String()),
			zap.String("intent_name", job.Intent.IntentName),
			zap.String("intent_id", res.IntentID),
			zap.String("requested_by", job.RequestedBy),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		// Unknown job types go to the DLQ.
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError settles a failed job: permanent errors and exhausted jobs are
// dead-lettered, throttled jobs are re-enqueued with backoff, and anything
// else is requeued.
func (w *IntentTrainer) handleJobError(ctx context.Context, msg queue.Delivery, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	}

	if nlu.IsPermanentError(err) || !job.CanRetry() {
		w.logger.Error("intent_training_failed", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed permanently: %w", err)
	}

	if w.jobQueue != nil {
		delay := nlu.GetRetryDelay(err, job.RetryCount)
		delayed := job.Delayed(w.now().Add(delay))
		enqueueErr := w.jobQueue.Enqueue(ctx, delayed)
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				w.logger.Warn("job_ack_failed", zap.Error(ackErr))
			}
			w.logger.Warn("intent_training_retry_scheduled", append(fields, zap.Duration("delay", delay))...)
			return fmt.Errorf("job failed (retry in %v): %w", delay, err)
		}
		w.logger.Warn("job_reenqueue_failed", zap.String("job_id", job.ID.String()), zap.Error(enqueueErr))
	}

	w.logger.Warn("intent_training_requeued", fields...)
	if nackErr := msg.Nack(true); nackErr != nil {
		w.logger.Warn("job_nack_failed", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (will retry): %w", err)
}

// Run consumes messages until ctx ends or the channel closes.
func (w *IntentTrainer) Run(ctx context.Context, messages <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-messages:
			if !ok {
				w.logger.Info("message_channel_closed")
				return
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Debug("job_not_completed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}
