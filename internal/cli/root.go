package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/config"
)

var configPath string

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "claude-pulse",
		Short: "Desktop monitor for Claude Code conversation logs",
		Long: `Claude Pulse - Tail the Claude Code history stream, group records into
sessions, derive usage and cost statistics, and keep aged data cleaned up.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.claude-pulse/config.json)")

	rootCmd.AddCommand(
		NewMonitorCommand(),
		NewHistoryCommand(),
		NewSessionsCommand(),
		NewShowCommand(),
		NewStatsCommand(),
		NewSearchCommand(),
		NewCleanupCommand(),
		NewRetentionCommand(),
		NewDeleteCommand(),
	)

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
