package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/medvax-chat/internal/config"
	"github.com/benvon/medvax-chat/internal/middleware"
	"github.com/benvon/medvax-chat/internal/services/auth"
)

// NewTestCmd creates the test command, which probes the external dependencies
// named in the environment.
func NewTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test dependency configuration",
		Long:  "Test the session store, Redis and admin JWKS configuration by connecting to each",
	}
	cmd.AddCommand(newTestDatabaseCmd())
	cmd.AddCommand(newTestRedisCmd())
	cmd.AddCommand(newTestJWKSCmd())
	return cmd
}

func newTestDatabaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "database",
		Short: "Connect to the session store and report its schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing %s session store\n", cfg.StoreDriver)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("failed to reach database: %w", err)
			}
			fmt.Fprintln(out, "✓ Database is reachable")

			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return fmt.Errorf("failed to read migration version: %w", err)
			}
			if version == 0 || dirty {
				return fmt.Errorf("schema not ready (version %d, dirty %v); run 'migrate up'", version, dirty)
			}
			fmt.Fprintf(out, "✓ Schema is at version %d\n", version)
			return nil
		},
	}
}

func newTestRedisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redis",
		Short: "Connect to the Redis rate limit store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStore()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is not set; rate limit counters are process local")
			}

			client, err := middleware.NewRedisClient(context.Background(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Redis is reachable")
			return nil
		},
	}
}

func newTestJWKSCmd() *cobra.Command {
	var jwksURL string
	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Fetch the admin JWKS and list its keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jwksURL == "" {
				cfg, err := config.LoadStore()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				jwksURL = cfg.AdminJWKSURL
			}
			if jwksURL == "" {
				return fmt.Errorf("--url or ADMIN_JWKS_URL is required")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing JWKS endpoint: %s\n", jwksURL)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			set, err := auth.NewJWKSManager(0, nil).GetJWKS(ctx, jwksURL)
			if err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}
			if set.Len() == 0 {
				return fmt.Errorf("JWKS endpoint returned no keys")
			}
			for i := 0; i < set.Len(); i++ {
				key, _ := set.Key(i)
				fmt.Fprintf(out, "  key %s (%s)\n", key.KeyID(), key.KeyType())
			}
			fmt.Fprintf(out, "✓ JWKS endpoint is accessible with %d key(s)\n", set.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&jwksURL, "url", "", "JWKS URL (defaults to ADMIN_JWKS_URL)")
	return cmd
}
