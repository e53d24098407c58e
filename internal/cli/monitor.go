package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhanBoss/claude-pulse/internal/monitor"
	"github.com/zhanBoss/claude-pulse/internal/server"
)

func NewMonitorCommand() *cobra.Command {
	var listenAddr string
	var noServe bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the ingestion monitor",
		Long: `Start the long-running monitor that tails the history file, persists
new records, and serves the UI boundary until interrupted.`,
		Example: `  # Run with the default configuration
  claude-pulse monitor

  # Run without the HTTP/websocket boundary
  claude-pulse monitor --no-serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			mon, err := monitor.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create monitor: %w", err)
			}

			if noServe {
				return mon.Run()
			}

			srv := server.New(mon, cfg.ListenAddr)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			fmt.Printf("Monitoring %s, serving on %s\n", cfg.HistoryPath, cfg.ListenAddr)

			runErr := mon.Run()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Server shutdown: %v\n", err)
			}
			if serveErr := <-errCh; serveErr != nil && runErr == nil {
				return serveErr
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the UI boundary (overrides config)")
	cmd.Flags().BoolVar(&noServe, "no-serve", false, "Run ingestion without the HTTP boundary")

	return cmd
}
