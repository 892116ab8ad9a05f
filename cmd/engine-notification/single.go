package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var singleCmd = &cobra.Command{
	Use:   "single <dispatch-id>",
	Short: "Deliver one notification dispatch by id, then exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runSingle,
}

func init() {
	rootCmd.AddCommand(singleCmd)
}

func runSingle(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid dispatch id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	deps, err := loadCLIDeps(ctx, cmd)
	if err != nil {
		return err
	}
	defer deps.closeFn()

	if err := deps.executor.SendSingle(ctx, id); err != nil {
		return fmt.Errorf("deliver dispatch %d: %w", id, err)
	}
	return nil
}
