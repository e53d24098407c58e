package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/index"
	"github.com/zhanBoss/claude-pulse/internal/logstore"
)

func NewCleanupCommand() *cobra.Command {
	var retainDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete persisted records older than the retention window",
		Long: `Run one cleanup pass immediately. The retention window comes from the
config file unless --retain-days overrides it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			retain := time.Duration(cfg.Retention.RetainMs) * time.Millisecond
			if retainDays > 0 {
				retain = time.Duration(retainDays) * 24 * time.Hour
			}
			if retain <= 0 {
				return fmt.Errorf("no retention window configured; pass --retain-days")
			}

			store, err := logstore.NewStore(cfg.DataDir)
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-retain)
			deleted, err := store.DeleteOlderThan(cutoff)
			if err != nil {
				// Partial success: report what was removed before failing.
				fmt.Printf("Deleted %d record(s) before error\n", deleted)
				return err
			}

			if ix, ixErr := index.Open(cfg.IndexPath); ixErr == nil {
				ix.Prune(cutoff)
				ix.Close()
			}

			fmt.Printf("✓ Deleted %d record(s) older than %s\n", deleted, cutoff.Local().Format(time.DateTime))
			return nil
		},
	}

	cmd.Flags().IntVar(&retainDays, "retain-days", 0, "Override the retention window in days")

	return cmd
}
