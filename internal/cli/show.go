package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/logstore"
	"github.com/zhanBoss/claude-pulse/internal/sessions"
)

func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-key>",
		Short: "Print the full conversation for one session",
		Args:  cobra.ExactArgs(1),
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

			sess, ok := sessions.FromEntries(entries).Get(args[0])
			if !ok {
				return fmt.Errorf("session not found: %s", args[0])
			}

			fmt.Printf("Session: %s\n", sess.Key)
			fmt.Printf("Project: %s\n\n", sess.Project)
			for _, rec := range sess.Records {
				fmt.Printf("[%s]\n%s\n\n", rec.Timestamp.Local().Format(time.DateTime), rec.Prompt)
			}
			return nil
		},
	}

	return cmd
}
