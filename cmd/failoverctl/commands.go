package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/steelburn/candidacy-sub001/internal/app"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/failover"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/reload"
	"github.com/steelburn/candidacy-sub001/internal/shared/database"
)

// withApp builds the application for one command and closes it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// --- migrate ---

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			versions, err := db.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess(cmd, "Schema up to date (%s, %d migrations applied)", db.Dialect(), len(versions))
			return nil
		},
	}
}

// --- seed ---

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog>",
		Short: "Write providers, models and chains from a YAML or TOML catalog",
		Long: `Write providers, models and chains from a YAML or TOML catalog.

Examples:
  failoverctl seed ./catalog.yaml
  failoverctl seed /etc/ai/catalog.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sum, err := reload.ApplyCatalog(ctx, args[0], a.DB, nil)
				if err != nil {
					return err
				}
				printSuccess(cmd, "Applied %d providers, %d models, %d services", sum.Providers, sum.Models, sum.Services)

				if broadcast := a.Broadcast(); broadcast != nil {
					if err := broadcast(ctx, "catalog seeded from CLI"); err != nil {
						printWarning(cmd, "reload broadcast failed: %v", err)
					}
				}
				return nil
			})
		},
	}
}

// --- resolve ---

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <service-type>",
		Short: "Show the failover chain for a service type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Service.Chain(ctx, args[0])
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PRIORITY\tPROVIDER\tMODEL")
				for _, e := range entries {
					model := e.Model
					if model == "" {
						model = "-"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Priority, e.Provider, model)
				}
				return tw.Flush()
			})
		},
	}
}

// --- generate ---

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <service-type>",
		Short: "Run a prompt through a service type's chain",
		Long: `Run a prompt through a service type's chain.

Examples:
  failoverctl generate matching --prompt "Rank these candidates"
  failoverctl generate cv-parsing --prompt "..." --system "Reply in JSON"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, _ := cmd.Flags().GetString("prompt")
			system, _ := cmd.Flags().GetString("system")
			maxTokens, _ := cmd.Flags().GetInt("max-tokens")

			req := providers.Request{Prompt: prompt, SystemPrompt: system}
			if maxTokens > 0 {
				req.MaxTokens = &maxTokens
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				env, err := a.Service.Generate(ctx, args[0], req)
				if err != nil {
					return err
				}
				return printEnvelope(cmd, env)
			})
		},
	}
	cmd.Flags().String("prompt", "", "prompt text")
	cmd.Flags().String("system", "", "system prompt")
	cmd.Flags().Int("max-tokens", 0, "completion token limit")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

// --- parse ---

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Extract text from a document through its parser chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceType, _ := cmd.Flags().GetString("service-type")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				env, err := a.Service.Parse(ctx, serviceType, args[0])
				if err != nil {
					return err
				}
				return printEnvelope(cmd, env)
			})
		},
	}
	cmd.Flags().String("service-type", "", "service type (default: derived from the file)")
	return cmd
}

// --- providers ---

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				list := a.Service.Providers()
				if len(list) == 0 {
					printWarning(cmd, "no enabled providers")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tTYPE\tKIND\tTIMEOUT")
				for _, p := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Type, p.Kind, time.Duration(p.TimeoutMs)*time.Millisecond)
				}
				return tw.Flush()
			})
		},
	}
}

// --- reload ---

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask running services to rebuild their provider registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				broadcast := a.Broadcast()
				if broadcast == nil {
					return fmt.Errorf("REDIS_URL is not configured; use POST /v1/admin/reload instead")
				}
				if err := broadcast(ctx, "failoverctl reload"); err != nil {
					return err
				}
				printSuccess(cmd, "Reload broadcast on %s", a.Config.ReloadChannel)
				return nil
			})
		},
	}
}

// --- logs ---

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent request logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceType, _ := cmd.Flags().GetString("service-type")
			limit, _ := cmd.Flags().GetInt("limit")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				logs, err := a.Logs.Recent(ctx, serviceType, limit)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tSERVICE\tPROVIDER\tOK\tATTEMPT\tMS\tERROR")
				for _, l := range logs {
					errMsg := ""
					if l.ErrorMessage != nil {
						errMsg = truncate(*l.ErrorMessage, 60)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d/%d\t%d\t%s\n",
						l.CreatedAt.Local().Format(time.DateTime), l.ServiceType, l.Provider, l.Success,
						l.FailoverAttempt, l.TotalAttempts, l.DurationMs, errMsg)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().String("service-type", "", "only this service type")
	cmd.Flags().Int("limit", 20, "number of rows")
	return cmd
}

// --- stats ---

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-provider success rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetDuration("since")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Logs.Stats(ctx, since)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PROVIDER\tREQUESTS\tSUCCESS\tFAILED\tAVG MS")
				for _, s := range stats {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.0f\n", s.Provider, s.Requests, s.Successes, s.Failures, s.AvgDurationMs)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Duration("since", 24*time.Hour, "aggregation window")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printEnvelope(cmd *cobra.Command, env *failover.Envelope) error {
	if err := printJSON(cmd, env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}
	return nil
}
