package main

import (
	"context"
	"os"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "fleetcomm",
	Short:         "Fleet communication dashboard backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, importDriversCmd, sendTestCmd)
}

func main() {
	defer func() { _ = logging.Logger.Sync() }()

	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		logging.Logger.Error("command failed", zap.String("error", err.Error()))
		os.Exit(1)
	}
}
