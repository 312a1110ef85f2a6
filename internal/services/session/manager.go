package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/logger"
	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/validation"
)

// DefaultStoreTimeout bounds every store call made by the manager.
const DefaultStoreTimeout = 5 * time.Second

// maxCreateAttempts caps create/resume retries when racing requests keep
// deactivating and recreating the same user's session.
const maxCreateAttempts = 3

var (
	// ErrInvalidUserID is returned when a user id is neither a UUID nor an anonymous token.
	ErrInvalidUserID = errors.New("invalid user id format")
	// ErrNoActiveSession is returned when an operation needs an active session and the user has none.
	ErrNoActiveSession = errors.New("no active session found for user")
)

// Manager owns the session lifecycle. All session mutation goes through it.
type Manager struct {
	store        Store
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithStoreTimeout overrides DefaultStoreTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.storeTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates a session lifecycle manager over store.
func NewManager(store Store, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store:        store,
		logger:       log,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// clock returns the current time in the form stored by every backend.
func (m *Manager) clock() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

// GetOrCreateSession resumes the user's active session, counting one more
// message, or starts a new one. Concurrent calls for the same user converge on
// a single active session.
func (m *Manager) GetOrCreateSession(ctx context.Context, userID string, meta models.RequestMetadata) (*models.SessionInfo, error) {
	if !validation.IsValidUUID(userID) {
		return nil, ErrInvalidUserID
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		s, err := m.resumeOrCreate(ctx, userID, meta)
		if errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrNotFound) {
			// Lost a race with another request for this user; re-read and resume.
			m.logger.Debug("session_create_race",
				zap.String("user_id", logger.SanitizeUserID(userID)),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.Info(), nil
	}
	return nil, fmt.Errorf("failed to resolve session after %d attempts: %w", maxCreateAttempts, ErrDuplicateKey)
}

func (m *Manager) resumeOrCreate(ctx context.Context, userID string, meta models.RequestMetadata) (*models.Session, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	now := m.clock()
	existing, err := m.store.FindActiveByUser(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}

	if existing != nil {
		s, err := m.store.RecordActivity(sctx, existing.SessionID, now, now.Add(models.SessionTTL))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to record session activity: %w", err)
		}
		// A lapsed session that has not been swept yet is extended, not replaced.
		m.logger.Debug("session_resumed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("session_id", s.SessionID),
			zap.Int("message_count", s.MessageCount),
			zap.Bool("was_expired", existing.IsExpired(now)),
		)
		return s, nil
	}

	s := &models.Session{
		UserID:       userID,
		SessionID:    m.newID(),
		ContextData:  models.ContextData{},
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(models.SessionTTL),
		MessageCount: 1,
		IsActive:     true,
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
	}
	if err := m.store.Create(sctx, s); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("session_created",
		zap.String("user_id", logger.SanitizeUserID(userID)),
		zap.String("session_id", s.SessionID),
	)
	return s, nil
}

// UpdateSessionContext merges partial into the user's active session context.
func (m *Manager) UpdateSessionContext(ctx context.Context, userID string, partial models.ContextData) (*models.Session, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	existing, err := m.store.FindActiveByUser(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	if existing == nil {
		return nil, ErrNoActiveSession
	}
	if len(partial) == 0 {
		return existing, nil
	}

	s, err := m.store.MergeContext(sctx, existing.SessionID, partial)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to merge session context: %w", err)
	}
	return s, nil
}

// GetSessionInfo returns the user's active session, or an inactive placeholder
// when there is none.
func (m *Manager) GetSessionInfo(ctx context.Context, userID string) (*models.SessionInfo, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	s, err := m.store.FindActiveByUser(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	if s == nil {
		return &models.SessionInfo{UserID: userID}, nil
	}
	return s.Info(), nil
}

// DeactivateSession ends the user's active session. It reports false when
// there was nothing to end.
func (m *Manager) DeactivateSession(ctx context.Context, userID string) (bool, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	s, err := m.store.FindActiveByUser(sctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to find active session: %w", err)
	}
	if s == nil {
		return false, nil
	}

	s.IsActive = false
	if err := m.store.Save(sctx, s); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}

	m.logger.Info("session_deactivated",
		zap.String("user_id", logger.SanitizeUserID(userID)),
		zap.String("session_id", s.SessionID),
	)
	return true, nil
}

// CleanupExpiredSessions deactivates every active session past its expiry.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	n, err := m.store.MarkExpiredInactive(sctx, m.clock())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("expired_sessions_cleaned", zap.Int64("count", n))
	}
	return n, nil
}

// GetSessionStatistics aggregates session counts for monitoring.
func (m *Manager) GetSessionStatistics(ctx context.Context) (*models.SessionStatistics, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	stats, err := m.store.AggregateStatistics(sctx, m.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session statistics: %w", err)
	}
	stats.AvgMessagesPerSession = math.Round(stats.AvgMessagesPerSession*100) / 100
	stats.CleanupNeeded = stats.ExpiredSessions > 0
	return stats, nil
}

// GetAllActiveSessions lists active sessions, most recent first. A limit of 0 means no limit.
func (m *Manager) GetAllActiveSessions(ctx context.Context, limit int) ([]*models.SessionSummary, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	list, err := m.store.ListActive(sctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return list, nil
}

// GetUserSessions lists every session a user has had, most recent first.
func (m *Manager) GetUserSessions(ctx context.Context, userID string) ([]*models.SessionSummary, error) {
	if !validation.IsValidUUID(userID) {
		return nil, ErrInvalidUserID
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	list, err := m.store.ListByUser(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	return list, nil
}

// GetActiveSessionCount returns the number of sessions currently flagged active.
func (m *Manager) GetActiveSessionCount(ctx context.Context) (int64, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	n, err := m.store.CountActive(sctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}
