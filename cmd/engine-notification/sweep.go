package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deliver every notification dispatch currently due, then exit",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := loadCLIDeps(ctx, cmd)
	if err != nil {
		return err
	}
	defer deps.closeFn()

	if err := deps.executor.RunPeriodic(ctx); err != nil {
		return fmt.Errorf("notification sweep: %w", err)
	}
	return nil
}
