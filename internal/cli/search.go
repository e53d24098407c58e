package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/index"
)

func NewSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over captured prompts",
		Example: `  # Find prompts mentioning a migration
  claude-pulse search "database migration"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ix, err := index.Open(cfg.IndexPath)
			if err != nil {
				return fmt.Errorf("failed to open search index: %w", err)
			}
			defer ix.Close()

			results, err := ix.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			for i, r := range results {
				session := r.Entry.SessionID
				if session == "" {
					session = "-"
				}
				fmt.Printf("%d. %s  %s\n   %s\n", i+1, r.Entry.Timestamp, session, r.Snippet)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	return cmd
}
