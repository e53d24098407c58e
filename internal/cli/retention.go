package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/config"
)

func NewRetentionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Configure the automatic cleanup scheduler",
		Long: `Enable, disable, or inspect the retention configuration. A running
monitor picks the change up on restart; the UI boundary applies it live.`,
	}

	cmd.AddCommand(
		newRetentionEnableCommand(),
		newRetentionDisableCommand(),
		newRetentionStatusCommand(),
	)

	return cmd
}

func newRetentionEnableCommand() *cobra.Command {
	var intervalHours, retainDays int

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable automatic cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if intervalHours <= 0 {
				return fmt.Errorf("invalid --interval-hours: %d", intervalHours)
			}
			if retainDays <= 0 {
				return fmt.Errorf("invalid --retain-days: %d", retainDays)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Retention = config.Retention{
				Enabled:    true,
				IntervalMs: int64(intervalHours) * int64(time.Hour/time.Millisecond),
				RetainMs:   int64(retainDays) * int64(24*time.Hour/time.Millisecond),
			}
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Printf("✓ Retention enabled: every %dh, keep %dd\n", intervalHours, retainDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&intervalHours, "interval-hours", 24, "Hours between cleanup runs")
	cmd.Flags().IntVar(&retainDays, "retain-days", 30, "Days of data to keep")

	return cmd
}

func newRetentionDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable automatic cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Retention.Enabled = false
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Println("✓ Retention disabled")
			return nil
		},
	}
}

func newRetentionStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the retention configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r := cfg.Retention
			if !r.Enabled {
				fmt.Println("Retention: disabled")
				return nil
			}
			fmt.Println("Retention: enabled")
			fmt.Printf("  Interval: %s\n", time.Duration(r.IntervalMs)*time.Millisecond)
			fmt.Printf("  Window:   %s\n", time.Duration(r.RetainMs)*time.Millisecond)
			return nil
		},
	}
}

func saveConfig(cfg *config.Config) error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	return cfg.Save(path)
}
