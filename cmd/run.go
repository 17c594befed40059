// Package cmd defines and implements the CLI commands for the aiparser executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyfong/aiparserpipeline/internal/input"
	"github.com/tyfong/aiparserpipeline/internal/lockfile"
)

// newRunCmd creates and configures the 'run' subcommand, which executes
// one full batch over the projects listed in a CSV file.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input.csv>",
		Short: "Runs the batch pipeline over a CSV of projects and URLs",
		Long: `Reads (project, url) pairs from the given CSV, fetches each URL once,
evaluates every prompt against the cached content, and writes a merged
CSV readout. A checkpoint file records completed projects so a second
invocation skips them.`,
		Args: cobra.ExactArgs(1),
		RunE: runRunCommand,
	}
	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	guard, err := lockfile.New(cfg.Pipeline.LockPath, logger)
	if err != nil {
		return fmt.Errorf("init instance lock: %w", err)
	}
	if err := guard.Acquire(); err != nil {
		return err
	}
	defer guard.Release()

	units, err := input.LoadCSV(args[0])
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	logger.Info("input loaded",
		zap.String("path", args[0]), zap.Int("units", len(units)))

	summary, runErr := appInstance.Orchestrator().Run(ctx, units)
	logger.Info("run finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration))

	results := appInstance.Checkpoint().Load()
	if len(results) > 0 {
		path, werr := appInstance.Report().Write(ctx, results)
		if werr != nil {
			return fmt.Errorf("write readout: %w", werr)
		}
		logger.Info("readout written", zap.String("path", path))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run pipeline: %w", runErr)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d unit(s) failed: %v", summary.Failed, summary.FailedUnits)
	}

	// Every unit is done and the readout is on disk; the checkpoint has
	// served its purpose.
	if err := appInstance.Checkpoint().Remove(); err != nil {
		logger.Warn("checkpoint removal failed", zap.Error(err))
	}
	return nil
}
