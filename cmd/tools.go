package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/app"
	"github.com/jonesrussell/north-cloud/chimera/internal/database"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

const defaultTokenTTL = 24 * time.Hour

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or revert the database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, log, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err = database.Migrate(cfg.Database.URL(), args[0]); err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			log.Info("Migrations applied", logger.String("direction", args[0]))
			return nil
		},
	}
}

func newTrendsCommand(opts *options) *cobra.Command {
	var (
		agentID string
		sources []string
		since   string
		limit   int
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Run fetch_trends and print the output as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var limitArg *int
			if cmd.Flags().Changed("limit") {
				limitArg = &limit
			}
			body, err := trendsInput(agentID, sources, since, limitArg)
			if err != nil {
				return err
			}

			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if refresh {
					if err := a.RefreshTrends(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
					}
				}
				out, err := a.Invoke(ctx, skill.FetchTrends, body)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "cli", "agent id sent with the request")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "restrict to these sources (repeatable)")
	cmd.Flags().StringVar(&since, "since", "", "drop trends observed before this RFC 3339 time")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of trends (default trends.default_limit)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch every source before reading")
	return cmd
}

// trendsInput builds the fetch_trends input. A nil limit leaves the choice to
// the configured default.
func trendsInput(agentID string, sources []string, since string, limit *int) ([]byte, error) {
	input := map[string]any{"agent_id": agentID}
	if len(sources) > 0 {
		input["sources"] = sources
	}
	if since != "" {
		input["since"] = since
	}
	if limit != nil {
		input["limit"] = *limit
	}
	return json.Marshal(input)
}

func newTokenCommand(opts *options) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API bearer token signed with auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set; the API is unauthenticated")
			}
			token, err := jwt.Sign(cfg.Auth.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")
	return cmd
}
