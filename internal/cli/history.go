package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/logstore"
)

func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted history records",
		Long:  `Read the normalized log files and print recent records in stable file order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := logstore.NewStore(cfg.DataDir)
			if err != nil {
				return err
			}

			entries, err := store.ReadAll(limit)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No records captured yet. Is the monitor running?")
				return nil
			}

			for _, e := range entries {
				session := e.SessionID
				if session == "" {
					session = "-"
				}
				prompt := e.Prompt
				if len(prompt) > 80 {
					prompt = prompt[:80] + "..."
				}
				fmt.Printf("%s  %-36s  %s\n", e.Timestamp, session, prompt)
			}
			fmt.Printf("\n%d record(s)\n", len(entries))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of records to print")

	return cmd
}
