package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/stats"
)

func NewStatsCommand() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "stats <session-id>",
		Short: "Show usage statistics for one session",
		Long:  `Compute token, cost, and tool statistics from the session's transcript file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				return fmt.Errorf("--project flag is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			extractor := stats.NewExtractor(cfg.ProjectsDir, cfg.Pricing)
			meta := extractor.Extract(project, args[0])

			fmt.Printf("Session: %s\n", meta.SessionID)
			fmt.Printf("Project: %s\n", meta.Project)
			fmt.Printf("Messages: %d\n", meta.MessageCount)
			fmt.Printf("Total Tokens: %d\n", meta.TotalTokens)
			fmt.Printf("Total Cost: $%.4f\n", meta.TotalCostUSD)

			if meta.HasToolUse {
				fmt.Printf("\nTool Invocations (%d total):\n", meta.ToolUseCount)
				names := make([]string, 0, len(meta.ToolUsage))
				for name := range meta.ToolUsage {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					line := fmt.Sprintf("  %s: %d", name, meta.ToolUsage[name])
					if errs := meta.ToolErrors[name]; errs > 0 {
						line += fmt.Sprintf(" (%d failed)", errs)
					}
					if avg, ok := meta.ToolAvgMillis[name]; ok {
						line += fmt.Sprintf(", avg %.0fms", avg)
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Absolute project path the session belongs to")
	cmd.MarkFlagRequired("project")

	return cmd
}
