package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/milestoner/internal/middleware"
	"github.com/arturoeanton/milestoner/internal/optimal"
	"github.com/arturoeanton/milestoner/internal/service"
	"github.com/arturoeanton/milestoner/pkg/config"
)

var errInvalidHorizon = errors.New("horizon must be today, tomorrow or week")

var (
	repoPath     string
	storeBackend string
	verbose      bool
)

// newRootCmd returns the root command of the milestoner CLI.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "milestoner",
		Short:         "Turn git activity into scheduled social posts",
		Long:          "Milestoner summarizes recent commits, drafts updates and publishes them now or at a recommended time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			// stdout carries MCP frames and command output, so logs go to stderr.
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVar(&repoPath, "repo", "", "git repository to read (default $REPO_PATH or .)")
	root.PersistentFlags().StringVar(&storeBackend, "store", "", "schedule store: bolt|postgres|redis|memory (default $STORE_BACKEND)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newMCPCmd())
	root.AddCommand(newActivityCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newPostsCmd())
	root.AddCommand(newCancelCmd())
	root.AddCommand(newDispatchCmd())
	root.AddCommand(newOptimalCmd())
	root.AddCommand(newTokenCmd())

	return root
}

func loadConfig() *config.Config {
	cfg := config.Load()
	if repoPath != "" {
		cfg.RepoPath = repoPath
	}
	if storeBackend != "" {
		cfg.StoreBackend = storeBackend
	}
	return cfg
}

// withApp opens the stores for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := newApp(loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// newMCPCmd implements: milestoner mcp
func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				return mcpServer(a).RunStdio(cmd.Context())
			})
		},
	}
}

// newActivityCmd implements: milestoner activity --since "7 days"
func newActivityCmd() *cobra.Command {
	var since, commitRange string

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Summarize recent commits",
		Example: `  milestoner activity --since "2 weeks"
  milestoner activity --range v1.0..HEAD`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				summary, err := a.services.Activity.Summarize(cmd.Context(), service.ActivityQuery{
					Since: since,
					Range: commitRange,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "look-back window, e.g. '7 days' or '24 hours'")
	cmd.Flags().StringVar(&commitRange, "range", "", "commit range, e.g. 'last 5' or 'v1.0..HEAD'")
	return cmd
}

// newScheduleCmd implements: milestoner schedule "text" [--at time | --now]
func newScheduleCmd() *cobra.Command {
	var at, platformName string
	var immediate bool

	cmd := &cobra.Command{
		Use:   "schedule <content>",
		Short: "Schedule a post (next optimal slot unless --at or --now is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				when, err := service.ResolveWhen(at, false, immediate, a.services.Scheduling.Now().Location())
				if err != nil {
					return err
				}
				post, err := a.services.Scheduling.Schedule(cmd.Context(), service.ScheduleRequest{
					Content:  args[0],
					Platform: platformName,
					When:     when,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), post)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "publish time, RFC 3339 or local 2025-01-15T10:00:00")
	cmd.Flags().BoolVar(&immediate, "now", false, "make the post due immediately")
	cmd.Flags().StringVar(&platformName, "platform", "", "target platform (default from settings)")
	cmd.MarkFlagsMutuallyExclusive("at", "now")
	return cmd
}

// newPostsCmd implements: milestoner posts [--history N]
func newPostsCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List pending posts, or recent history with --history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if history > 0 {
					posts, err := a.services.Scheduling.History(cmd.Context(), history)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), posts)
				}
				view, err := a.services.Scheduling.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "show the N most recently published posts")
	return cmd
}

// newCancelCmd implements: milestoner cancel <id>
func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				post, err := a.services.Scheduling.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), post)
			})
		},
	}
}

// newDispatchCmd implements: milestoner dispatch [--every 1m]
func newDispatchCmd() *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Publish every due post once, or keep polling with --every",
		Example: `  # one pass, e.g. from cron
  milestoner dispatch

  # poll until interrupted
  milestoner dispatch --every 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx := cmd.Context()
				for {
					report, err := a.services.Scheduling.DispatchDue(ctx)
					if report != nil {
						if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
							return perr
						}
					}
					if err != nil && every == 0 {
						return err
					}
					if err != nil {
						slog.Error("dispatch failed", "error", err)
					}
					if every == 0 {
						return nil
					}
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(every):
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "poll interval; 0 runs a single pass")
	return cmd
}

// newOptimalCmd implements: milestoner optimal [--horizon week]
func newOptimalCmd() *cobra.Command {
	var horizon, now string

	cmd := &cobra.Command{
		Use:   "optimal",
		Short: "Grade the current time and list recommended posting times",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			ref := time.Now().In(loc)
			if now != "" {
				if ref, err = service.ParseTime(now, loc); err != nil {
					return err
				}
			}
			if horizon == "" {
				return printJSON(cmd.OutOrStdout(), optimal.BuildReport(ref))
			}
			h, ok := optimal.ParseHorizon(horizon)
			if !ok {
				return errInvalidHorizon
			}
			return printJSON(cmd.OutOrStdout(), optimal.Recommend(ref, h))
		},
	}
	cmd.Flags().StringVar(&horizon, "horizon", "", "today, tomorrow or week; omit for the full report")
	cmd.Flags().StringVar(&now, "at", "", "reference time, RFC 3339 or local (default now)")
	return cmd
}

// newTokenCmd implements: milestoner token --subject ci
func newTokenCmd() *cobra.Command {
	var subject, name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the REST API (requires JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			jwtCfg := middleware.JWTConfig{
				Secret:    cfg.JWTSecret,
				Issuer:    cfg.JWTIssuer,
				ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
			}
			if !jwtCfg.Enabled() {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := middleware.GenerateJWT(subject, name, jwtCfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(token + "\n"))
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	return cmd
}
