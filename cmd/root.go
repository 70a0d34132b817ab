// Package cmd defines and implements the CLI commands for the iconresolver executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/app"
	"github.com/JakeFAU/favicon-resolver/internal/config"
	"github.com/JakeFAU/favicon-resolver/internal/icon"
	"github.com/JakeFAU/favicon-resolver/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
type App interface {
	Close()
	Logger() *zap.Logger
	Serve(ctx context.Context) error
	FindIcons(ctx context.Context, requestedURL string) ([]icon.ValidatedIcon, error)
	BestIcon(ctx context.Context, requestedURL string) (icon.ValidatedIcon, error)
	Purge(ctx context.Context, requestedURL string) error
}

// newApp is the application factory. Tests replace it with a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "iconresolver",
		Short: "Finds the best favicon for any web page.",
		Long: `iconresolver discovers the icons a web page advertises, probes each
candidate, and picks the best one. It runs as an HTTP service or resolves a
single URL from the command line.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = logging.Sync(appInstance.Logger())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); env vars use the ICONS_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newCacheCmd())
	return cmd
}

// resolveApp pulls the App stored by the root command's pre-run hook.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
