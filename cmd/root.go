package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tyfong/aiparserpipeline/internal/app"
	"github.com/tyfong/aiparserpipeline/internal/config"
	"github.com/tyfong/aiparserpipeline/internal/lockfile"
	"github.com/tyfong/aiparserpipeline/internal/logging"
)

// Exit codes reported by the binary. A held lock is a clean refusal, not
// a failure.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitLockHeld = 2
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// cfgKey stores the loaded config alongside the app.
const cfgKey appKeyType = "config"

// newApp is the application factory. It's a variable so tests can swap
// in a stub.
var newApp = app.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aiparser",
		Short: "Batch pipeline that fetches pages once and parses them with LLM prompts.",
		Long: `aiparser runs a batch of projects through a fetch-once, process-many
pipeline. Each project's URLs are fetched a single time into a
content-addressed cache, evaluated against every configured prompt, and
merged into a CSV readout. Completed projects are checkpointed so an
interrupted run resumes where it left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flags are parsed but before the subcommand's RunE:
		// load config, build the logger, and wire the service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			ctx = context.WithValue(ctx, cfgKey, cfg)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./aiparser.yaml)")

	cmd.AddCommand(newRunCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not initialized")
	}
	return cfg, nil
}

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the run context so in-flight units stop cleanly.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			fmt.Fprintln(os.Stderr, "another instance is already running:", err)
			return ExitLockHeld
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return ExitFailure
	}
	return ExitOK
}
