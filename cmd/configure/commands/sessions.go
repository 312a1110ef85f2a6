package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/database"
	"github.com/benvon/medvax-chat/internal/services/session"
	"github.com/benvon/medvax-chat/internal/validation"
)

// NewSessionsCmd creates the sessions maintenance command.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain chat sessions",
	}
	cmd.AddCommand(newSessionsStatsCmd())
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsCleanupCmd())
	cmd.AddCommand(newSessionsEndCmd())
	return cmd
}

// withManager opens the store and runs fn against a session manager over it.
func withManager(fn func(ctx context.Context, m *session.Manager) error) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	m := session.NewManager(database.NewSessionRepository(db), zap.NewNop(),
		session.WithStoreTimeout(cfg.StoreTimeout))
	return fn(context.Background(), m)
}

func newSessionsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *session.Manager) error {
				stats, err := m.GetSessionStatistics(ctx)
				if err != nil {
					return fmt.Errorf("get statistics: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total sessions:    %d\n", stats.TotalSessions)
				fmt.Fprintf(out, "Active sessions:   %d\n", stats.ActiveSessions)
				fmt.Fprintf(out, "Expired sessions:  %d\n", stats.ExpiredSessions)
				fmt.Fprintf(out, "Total messages:    %d\n", stats.TotalMessages)
				fmt.Fprintf(out, "Avg per session:   %.2f\n", stats.AvgMessagesPerSession)
				if stats.CleanupNeeded {
					fmt.Fprintln(out, "Cleanup needed: run 'sessions cleanup'.")
				}
				return nil
			})
		},
	}
}

func newSessionsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 1000 {
				return fmt.Errorf("--limit must be between 1 and 1000")
			}
			return withManager(func(ctx context.Context, m *session.Manager) error {
				sessions, err := m.GetAllActiveSessions(ctx, limit)
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No active sessions.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USER\tSESSION\tMESSAGES\tLAST ACTIVITY")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.UserID, s.SessionID, s.MessageCount,
						s.LastActivity.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum sessions to show (1-1000)")
	return cmd
}

func newSessionsCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Deactivate expired sessions now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *session.Manager) error {
				cleaned, err := m.CleanupExpiredSessions(ctx)
				if err != nil {
					return fmt.Errorf("cleanup sessions: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d expired session(s).\n", cleaned)
				return nil
			})
		},
	}
}

func newSessionsEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <userId>",
		Short: "End the active session for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			if err := validation.Validate.Var(userID, "required,chat_user_id"); err != nil {
				return fmt.Errorf("invalid user id %q", userID)
			}
			return withManager(func(ctx context.Context, m *session.Manager) error {
				ended, err := m.DeactivateSession(ctx, userID)
				if err != nil {
					return fmt.Errorf("end session: %w", err)
				}
				if !ended {
					fmt.Fprintf(cmd.OutOrStdout(), "No active session for %s.\n", userID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session for %s ended.\n", userID)
				return nil
			})
		},
	}
}
