package session

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/medvax-chat/internal/models"
)

var (
	// ErrDuplicateKey is returned by Store.Create when the user already has an active session.
	ErrDuplicateKey = errors.New("active session already exists for user")
	// ErrNotFound is returned when a session addressed by id is missing or no longer active.
	ErrNotFound = errors.New("session not found")
)

// Store persists sessions. Implementations must guarantee that at most one
// session per user has IsActive set at any time.
type Store interface {
	// FindActiveByUser returns nil, nil when the user has no active session.
	FindActiveByUser(ctx context.Context, userID string) (*models.Session, error)
	// Create inserts a new session, returning ErrDuplicateKey if one is already active for the user.
	Create(ctx context.Context, s *models.Session) error
	// Save persists the session's context and active flag.
	Save(ctx context.Context, s *models.Session) error
	// RecordActivity bumps last activity, expiry and message count of an active
	// session in one statement and returns the updated row.
	RecordActivity(ctx context.Context, sessionID string, at, expiresAt time.Time) (*models.Session, error)
	// MergeContext layers partial onto the stored context of an active session.
	MergeContext(ctx context.Context, sessionID string, partial models.ContextData) (*models.Session, error)
	// MarkExpiredInactive deactivates every active session whose expiry is before now.
	MarkExpiredInactive(ctx context.Context, now time.Time) (int64, error)
	// AggregateStatistics returns raw counts; averages are over active sessions.
	AggregateStatistics(ctx context.Context, now time.Time) (*models.SessionStatistics, error)
	// ListActive returns active sessions, most recently used first.
	ListActive(ctx context.Context, limit int) ([]*models.SessionSummary, error)
	// ListByUser returns every session of a user, most recently used first.
	ListByUser(ctx context.Context, userID string) ([]*models.SessionSummary, error)
	CountActive(ctx context.Context) (int64, error)
}
