// Package cmd implements the chimera command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	infraconfig "github.com/jonesrussell/north-cloud/chimera/infrastructure/config"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/chimera/internal/app"
	"github.com/jonesrussell/north-cloud/chimera/internal/config"
)

const defaultConfigPath = "config.yml"

type options struct {
	configPath string
	version    string
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{version: version}

	root := &cobra.Command{
		Use:   "chimera",
		Short: "Agent skills for trend discovery, content generation and publishing",
		Long: `chimera serves the fetch_trends, generate_video and publish_content skills
over HTTP and runs the outbox worker that hands approved content to the
platform adapters.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", infraconfig.GetConfigPath(defaultConfigPath),
		"path to the configuration file (env CONFIG_PATH)")

	root.AddCommand(
		newServeCommand(opts, "serve", "Run the HTTP API and the background workers", (*app.App).Run),
		newServeCommand(opts, "api", "Run the HTTP API only", (*app.App).RunAPI),
		newServeCommand(opts, "worker", "Run the outbox worker and trend refresher only", (*app.App).RunWorker),
		newMigrateCommand(opts),
		newTrendsCommand(opts),
		newTokenCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// Execute runs the command tree with the process arguments.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}

// loadConfig loads the configuration and creates the logger for it.
func (o *options) loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.version != "" {
		cfg.Service.Version = o.version
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With(
		logger.String("service", cfg.Service.Name),
		logger.String("version", cfg.Service.Version),
	), nil
}

// withApp creates the application, runs fn until SIGINT or SIGTERM and closes it.
func (o *options) withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopProfiling, err := profiling.Start(cfg.Profiling, cfg.Service.Name, cfg.Service.Version, log)
	if err != nil {
		log.Warn("Profiling disabled", logger.Error(err))
	}
	defer stopProfiling()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", logger.Error(err))
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newServeCommand(opts *options, use, short string, run func(*app.App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return run(a, ctx)
			})
		},
	}
}

func newVersionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chimera version %s\n", opts.version)
		},
	}
}
