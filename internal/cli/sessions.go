package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/logstore"
	"github.com/zhanBoss/claude-pulse/internal/sessions"
)

func NewSessionsCommand() *cobra.Command {
	var maxRecords int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions derived from the persisted log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := logstore.NewStore(cfg.DataDir)
			if err != nil {
				return err
			}
			entries, err := store.ReadAll(0)
			if err != nil {
				return fmt.Errorf("failed to read log: %w", err)
			}

			if maxRecords <= 0 {
				maxRecords = cfg.MetadataRecordCap
			}
			summaries := sessions.FromEntries(entries).ListMetadata(maxRecords)
			if len(summaries) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			for _, s := range summaries {
				id := s.SessionID
				if id == "" {
					id = s.Key
				}
				fmt.Printf("%-40s  %3d record(s)  %s  %s\n",
					id, s.RecordCount,
					s.LatestTimestamp.Local().Format(time.DateTime),
					s.Project)
			}
			fmt.Printf("\n%d session(s)\n", len(summaries))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "Cap on total records across listed sessions (default from config)")

	return cmd
}
