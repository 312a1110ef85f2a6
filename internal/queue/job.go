package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/benvon/medvax-chat/internal/models"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeTrainIntent adds an intent to the NLU agent
	JobTypeTrainIntent JobType = "train_intent"
)

// DefaultMaxRetries is the retry budget of a new job.
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID          uuid.UUID                  `json:"id"`
	Type        JobType                    `json:"type"`
	Intent      *models.TrainIntentRequest `json:"intent,omitempty"`
	RequestedBy string                     `json:"requested_by,omitempty"`
	NotBefore   *time.Time                 `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter    *time.Time                 `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	CreatedAt   time.Time                  `json:"created_at"`
	RetryCount  int                        `json:"retry_count"`
	MaxRetries  int                        `json:"max_retries"`
}

// NewTrainIntentJob creates a job that adds req to the NLU agent.
func NewTrainIntentJob(req *models.TrainIntentRequest, requestedBy string) *Job {
	return &Job{
		ID:          uuid.New(),
		Type:        JobTypeTrainIntent,
		Intent:      req,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
		MaxRetries:  DefaultMaxRetries,
	}
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Delayed returns a copy of the job scheduled no earlier than notBefore, with one more retry counted.
func (j *Job) Delayed(notBefore time.Time) *Job {
	next := *j
	next.NotBefore = &notBefore
	next.RetryCount = j.RetryCount + 1
	return &next
}
