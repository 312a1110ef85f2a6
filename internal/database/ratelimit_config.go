package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/benvon/medvax-chat/internal/models"
)

const ratelimitTable = "ratelimit_config"

// RatelimitConfigRepository handles per-route rate limit configuration in the database.
type RatelimitConfigRepository struct {
	db  *DB
	now func() time.Time
}

// NewRatelimitConfigRepository creates a new ratelimit config repository.
func NewRatelimitConfigRepository(db *DB) *RatelimitConfigRepository {
	return &RatelimitConfigRepository{db: db, now: time.Now}
}

// Get retrieves the rate limit config for a route. It returns nil when the route has no row.
func (r *RatelimitConfigRepository) Get(ctx context.Context, key string) (*models.RatelimitConfig, error) {
	query, args, err := r.db.Builder().
		Select("config_key", "rate", "created_at", "updated_at").
		From(ratelimitTable).
		Where(sq.Eq{"config_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ratelimit config query: %w", err)
	}

	c := &models.RatelimitConfig{}
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ConfigKey, &c.Rate, timestampDest(&c.CreatedAt), timestampDest(&c.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ratelimit config: %w", err)
	}
	return c, nil
}

// List returns every stored route config ordered by key.
func (r *RatelimitConfigRepository) List(ctx context.Context) ([]*models.RatelimitConfig, error) {
	query, args, err := r.db.Builder().
		Select("config_key", "rate", "created_at", "updated_at").
		From(ratelimitTable).
		OrderBy("config_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ratelimit config query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ratelimit config: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.RatelimitConfig
	for rows.Next() {
		c := &models.RatelimitConfig{}
		if err := rows.Scan(&c.ConfigKey, &c.Rate, timestampDest(&c.CreatedAt), timestampDest(&c.UpdatedAt)); err != nil {
			return nil, fmt.Errorf("scan ratelimit config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Set upserts the rate for a route. Rate format: e.g. "10-M", "5-H", "50/15m".
func (r *RatelimitConfigRepository) Set(ctx context.Context, c *models.RatelimitConfig) error {
	key := strings.TrimSpace(c.ConfigKey)
	if key == "" {
		return fmt.Errorf("config key cannot be empty")
	}
	rate := strings.TrimSpace(c.Rate)
	if rate == "" {
		return fmt.Errorf("rate cannot be empty")
	}

	now := r.now().UTC()
	query, args, err := r.db.Builder().
		Insert(ratelimitTable).
		Columns("config_key", "rate", "created_at", "updated_at").
		Values(key, rate, now, now).
		Suffix("ON CONFLICT (config_key) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ratelimit upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set ratelimit config: %w", err)
	}
	return nil
}
