package main

import (
	"context"
	"os/signal"
	"syscall"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/fleetcomm"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, webhook receivers and background workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := fleetcomm.NewApp(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}

		return app.Run(ctx)
	},
}
