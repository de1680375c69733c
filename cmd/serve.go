package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"case-explainer/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if port == 0 {
				port = a.cfg.WebPort
			}

			cleanup := web.NewCleanupService(a.docs, a.logger)
			go cleanup.Run(ctx, a.cfg.CachePurgeInterval)

			server := web.NewServer(a.engine, a.logger, a.cfg)
			addr := fmt.Sprintf(":%d", port)
			a.logger.Info("Starting case explainer web server", zap.String("port", addr))
			return server.Start(ctx, addr)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default WEB_PORT)")
	return cmd
}
