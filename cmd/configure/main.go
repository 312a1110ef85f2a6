package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/medvax-chat/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "medvax-chat-configure",
		Short: "Configuration tool for the MedVax chatbot",
		Long:  "CLI tool for schema migrations, rate limits, session maintenance and dependency checks",
	}

	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewSessionsCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
