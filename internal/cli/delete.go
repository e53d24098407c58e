package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/index"
	"github.com/zhanBoss/claude-pulse/internal/logstore"
)

func NewDeleteCommand() *cobra.Command {
	var sessionID, timestamp string
	var confirm bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a single captured record",
		Example: `  # Delete one record
  claude-pulse delete --session-id s1 --timestamp 2024-01-01T00:00:00Z

  # Skip the confirmation prompt
  claude-pulse delete --session-id s1 --timestamp 2024-01-01T00:00:00Z --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timestamp == "" {
				return fmt.Errorf("--timestamp flag is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := logstore.NewStore(cfg.DataDir)
			if err != nil {
				return err
			}

			if !confirm {
				fmt.Printf("Delete record (%s, %s)? [y/N]: ", sessionID, timestamp)
				var response string
				fmt.Scanln(&response)
				if response != "y" && response != "Y" {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			if err := store.DeleteEntry(sessionID, timestamp); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
			if ix, ixErr := index.Open(cfg.IndexPath); ixErr == nil {
				ix.Remove(sessionID, timestamp)
				ix.Close()
			}

			fmt.Println("✓ Record deleted")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session the record belongs to")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Exact stored timestamp of the record")
	cmd.Flags().BoolVar(&confirm, "yes", false, "Skip confirmation prompt")
	cmd.MarkFlagRequired("timestamp")

	return cmd
}
