package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/services/session"
)

const sessionsTable = "chat_sessions"

// sessionColumns lists columns returned by session SELECT and RETURNING clauses, in scan order.
var sessionColumns = []string{
	"session_id", "user_id", "context_data", "last_activity", "created_at",
	"expires_at", "message_count", "is_active", "user_agent", "ip_address",
}

var summaryColumns = []string{
	"user_id", "session_id", "last_activity", "message_count", "created_at", "is_active",
}

// SessionRepository stores chat sessions in postgres or sqlite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindActiveByUser returns the user's active session, or nil if there is none.
func (r *SessionRepository) FindActiveByUser(ctx context.Context, userID string) (*models.Session, error) {
	query, args, err := r.db.Builder().
		Select(sessionColumns...).
		From(sessionsTable).
		Where(sq.Eq{"user_id": userID, "is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build find query: %w", err)
	}

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return s, nil
}

// Create inserts a session. A concurrent insert for the same user loses on the
// partial unique index and gets session.ErrDuplicateKey.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	contextJSON, err := encodeContext(s.ContextData)
	if err != nil {
		return err
	}

	query, args, err := r.db.Builder().
		Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			s.SessionID, s.UserID, contextJSON, s.LastActivity.UTC(), s.CreatedAt.UTC(),
			s.ExpiresAt.UTC(), s.MessageCount, s.IsActive, s.UserAgent, s.IPAddress,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return session.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Save persists the session's context and active flag.
func (r *SessionRepository) Save(ctx context.Context, s *models.Session) error {
	contextJSON, err := encodeContext(s.ContextData)
	if err != nil {
		return err
	}

	query, args, err := r.db.Builder().
		Update(sessionsTable).
		Set("context_data", contextJSON).
		Set("is_active", s.IsActive).
		Where(sq.Eq{"session_id": s.SessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build save query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return session.ErrDuplicateKey
		}
		return fmt.Errorf("failed to save session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// RecordActivity extends an active session and counts one more message.
func (r *SessionRepository) RecordActivity(ctx context.Context, sessionID string, at, expiresAt time.Time) (*models.Session, error) {
	return r.updateReturning(ctx, r.db.Builder().
		Update(sessionsTable).
		Set("last_activity", at.UTC()).
		Set("expires_at", expiresAt.UTC()).
		Set("message_count", sq.Expr("message_count + 1")).
		Where(sq.Eq{"session_id": sessionID, "is_active": true}),
		"record activity")
}

// MergeContext merges partial into the stored JSON context inside the database,
// so concurrent merges for the same session do not drop each other's keys.
func (r *SessionRepository) MergeContext(ctx context.Context, sessionID string, partial models.ContextData) (*models.Session, error) {
	patch, err := encodeContext(partial)
	if err != nil {
		return nil, err
	}

	var merged sq.Sqlizer
	switch r.db.Dialect() {
	case DialectPostgres:
		merged = sq.Expr("context_data || ?::jsonb", patch)
	default:
		merged = sq.Expr("json_patch(context_data, ?)", patch)
	}

	return r.updateReturning(ctx, r.db.Builder().
		Update(sessionsTable).
		Set("context_data", merged).
		Where(sq.Eq{"session_id": sessionID, "is_active": true}),
		"merge context")
}

func (r *SessionRepository) updateReturning(ctx context.Context, ub sq.UpdateBuilder, op string) (*models.Session, error) {
	query, args, err := ub.Suffix("RETURNING " + strings.Join(sessionColumns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", op, err)
	}

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return s, nil
}

// MarkExpiredInactive deactivates active sessions that expired before now.
func (r *SessionRepository) MarkExpiredInactive(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := r.db.Builder().
		Update(sessionsTable).
		Set("is_active", false).
		Where(sq.Eq{"is_active": true}).
		Where(sq.Lt{"expires_at": now.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build expiry query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// AggregateStatistics computes session counts in a single pass over the table.
func (r *SessionRepository) AggregateStatistics(ctx context.Context, now time.Time) (*models.SessionStatistics, error) {
	query, args, err := r.db.Builder().
		Select("COUNT(*)").
		Column("COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0)").
		Column(sq.Expr("COALESCE(SUM(CASE WHEN is_active AND expires_at < ? THEN 1 ELSE 0 END), 0)", now.UTC())).
		Column("COALESCE(AVG(CASE WHEN is_active THEN message_count END), 0)").
		Column("COALESCE(SUM(CASE WHEN is_active THEN message_count ELSE 0 END), 0)").
		From(sessionsTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build statistics query: %w", err)
	}

	stats := &models.SessionStatistics{}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalSessions,
		&stats.ActiveSessions,
		&stats.ExpiredSessions,
		&stats.AvgMessagesPerSession,
		&stats.TotalMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session statistics: %w", err)
	}
	return stats, nil
}

// ListActive returns active sessions ordered by most recent activity.
func (r *SessionRepository) ListActive(ctx context.Context, limit int) ([]*models.SessionSummary, error) {
	qb := r.db.Builder().
		Select(summaryColumns...).
		From(sessionsTable).
		Where(sq.Eq{"is_active": true}).
		OrderBy("last_activity DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	return r.listSummaries(ctx, qb)
}

// ListByUser returns all of a user's sessions ordered by most recent activity.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.SessionSummary, error) {
	return r.listSummaries(ctx, r.db.Builder().
		Select(summaryColumns...).
		From(sessionsTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("last_activity DESC"))
}

// CountActive returns the number of sessions flagged active.
func (r *SessionRepository) CountActive(ctx context.Context) (int64, error) {
	query, args, err := r.db.Builder().
		Select("COUNT(*)").
		From(sessionsTable).
		Where(sq.Eq{"is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

func (r *SessionRepository) listSummaries(ctx context.Context, qb sq.SelectBuilder) ([]*models.SessionSummary, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.SessionSummary
	for rows.Next() {
		s := &models.SessionSummary{}
		if err := rows.Scan(
			&s.UserID,
			&s.SessionID,
			timestampDest(&s.LastActivity),
			&s.MessageCount,
			timestampDest(&s.CreatedAt),
			&s.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var contextJSON []byte
	err := row.Scan(
		&s.SessionID,
		&s.UserID,
		&contextJSON,
		timestampDest(&s.LastActivity),
		timestampDest(&s.CreatedAt),
		timestampDest(&s.ExpiresAt),
		&s.MessageCount,
		&s.IsActive,
		&s.UserAgent,
		&s.IPAddress,
	)
	if err != nil {
		return nil, err
	}

	s.ContextData = models.ContextData{}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &s.ContextData); err != nil {
			return nil, fmt.Errorf("failed to decode context data: %w", err)
		}
	}
	return s, nil
}

func encodeContext(c models.ContextData) (string, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode context data: %w", err)
	}
	return string(b), nil
}

var _ session.Store = (*SessionRepository)(nil)
