package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/powerbrain/brainmem-go/pkg/core"
	"github.com/powerbrain/brainmem-go/pkg/logging"
	"github.com/powerbrain/brainmem-go/pkg/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(&logging.Config{
				Level:  cfg.Logging.Level,
				Format: logging.Format(cfg.Logging.Format),
			})
			if err != nil {
				return err
			}

			// Requests for the same user may arrive concurrently.
			client, err := core.NewClient(cfg, core.WithLogger(logger), core.WithPerUserLocking())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(client, VersionString(), server.WithLogger(logger))
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}
