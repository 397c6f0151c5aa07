package main

import (
	"context"
	"fmt"
	"os"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/fleetcomm"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importFile    string
	importReplace bool
)

var importDriversCmd = &cobra.Command{
	Use:   "import-drivers",
	Short: "Import a driver roster from a CSV file into the configured store",
	RunE:  runImportDrivers,
}

func init() {
	importDriversCmd.Flags().StringVarP(&importFile, "file", "f", "", "CSV file with name and phone columns")
	importDriversCmd.Flags().BoolVar(&importReplace, "replace", false, "replace every stored driver instead of appending")
	_ = importDriversCmd.MarkFlagRequired("file")
}

func runImportDrivers(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	roster, err := os.Open(importFile)
	if err != nil {
		return err
	}
	defer roster.Close()

	fleetStore, err := fleetcomm.NewStore()
	if err != nil {
		return err
	}

	defer func() { _ = fleetStore.Close() }()

	driverService := driver.NewService(fleetStore)

	err = fleetStore.Init(ctx)
	if err != nil {
		return err
	}

	imported, err := driverService.Import(ctx, roster, importReplace)
	if err != nil {
		return err
	}

	err = fleetStore.Flush(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}

	logging.Logger.Info("drivers imported",
		zap.Int("imported", len(imported)),
		zap.Int("total", len(driverService.List())),
	)

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d drivers\n", len(imported))

	return err
}
