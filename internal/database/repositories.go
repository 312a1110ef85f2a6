package database

import (
	"context"

	"github.com/benvon/medvax-chat/internal/models"
)

// RatelimitConfigRepositoryInterface defines the interface for rate limit config operations.
// The rate limit reloader and the configure CLI depend on it rather than the concrete type.
type RatelimitConfigRepositoryInterface interface {
	Get(ctx context.Context, key string) (*models.RatelimitConfig, error)
	List(ctx context.Context) ([]*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// Ensure concrete types implement the interfaces
var (
	_ RatelimitConfigRepositoryInterface = (*RatelimitConfigRepository)(nil)
)
