package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/medvax-chat/internal/database"
	"github.com/benvon/medvax-chat/internal/middleware"
	"github.com/benvon/medvax-chat/internal/models"
)

// NewRatelimitCmd creates the ratelimit configuration command with list and set subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long:  "List or update per-route rate limits (e.g. 10-M, 5-H, 50/15m). Stored in database.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

// knownRoutes returns the configurable routes in a stable order.
func knownRoutes() []string {
	routes := make([]string, 0, len(models.DefaultRatelimits))
	for route := range models.DefaultRatelimits {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			stored, err := database.NewRatelimitConfigRepository(db).List(context.Background())
			if err != nil {
				return fmt.Errorf("list ratelimit config: %w", err)
			}
			byRoute := make(map[string]*models.RatelimitConfig, len(stored))
			for _, c := range stored {
				byRoute[c.ConfigKey] = c
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Rate limit configuration:")
			for _, route := range knownRoutes() {
				if c, ok := byRoute[route]; ok {
					fmt.Fprintf(out, "  %-28s %-10s (updated %s)\n", route, c.Rate, c.UpdatedAt.Format("2006-01-02 15:04"))
					continue
				}
				fmt.Fprintf(out, "  %-28s %-10s (default)\n", route, models.DefaultRatelimits[route])
			}
			return nil
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var route, rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set rate limit configuration for a route",
		Long:  "Update the rate for one route (e.g. --route chat --rate 10-M). Running servers pick it up on their next reload.",
		RunE: func(cmd *cobra.Command, args []string) error {
			route = strings.TrimSpace(route)
			rate = strings.TrimSpace(rate)
			if _, ok := models.DefaultRatelimits[route]; !ok {
				return fmt.Errorf("--route must be one of: %s", strings.Join(knownRoutes(), ", "))
			}
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 10-M, 50/15m)")
			}
			if _, err := middleware.ParseRate(rate); err != nil {
				return err
			}

			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			repo := database.NewRatelimitConfigRepository(db)
			c := &models.RatelimitConfig{ConfigKey: route, Rate: rate}
			if err := repo.Set(context.Background(), c); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rate limit for %s updated to %s.\n", route, rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "Route key (required)")
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 10-M, 5-H, 50/15m) (required)")
	return cmd
}
