// Package main is the entry point for the DOU notifier CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dounotify/internal/app"
	"dounotify/internal/clock"
	"dounotify/internal/config"
	"dounotify/internal/dag"
	"dounotify/internal/notify"
	"dounotify/internal/render/email"
	"dounotify/internal/report"

	"github.com/spf13/cobra"
)

var (
	configFile string
	configDir  string
)

var rootCmd = &cobra.Command{
	Use:           "dounotify",
	Short:         "DOU search notifier",
	Long:          `Parses DOU search DAG files and delivers search reports by email, Slack and Discord.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to one TOML config file")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "path to directory with TOML config fragments")
	rootCmd.MarkFlagsMutuallyExclusive("config", "config-dir")

	rootCmd.AddCommand(parseCmd, renderCmd, notifyCmd, varsCmd)
}

// exitCode maps configuration problems to 2 and everything else to 1.
func exitCode(err error) int {
	var cfgErr *dag.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

// loadConfig reads --config/--config-dir, falling back to built-in defaults.
func loadConfig() (config.Config, error) {
	if strings.TrimSpace(configFile) == "" && strings.TrimSpace(configDir) == "" {
		return config.Default(), nil
	}
	source, err := config.FromCLI(configFile, configDir)
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadSnapshot(source)
}

// newService loads config and builds the service for one command.
func newService(ctx context.Context) (*app.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	service, err := app.NewService(ctx, cfg, clock.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("service init failed: %w", err)
	}
	return service, nil
}

func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}

var parseCmd = &cobra.Command{
	Use:   "parse <dag.yaml>",
	Short: "Parse and validate a DAG file",
	Long:  `Prints the resolved DAG configuration as JSON together with its next scheduled run.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolveSQL, _ := cmd.Flags().GetBool("resolve-sql")

		service, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		cfg, err := service.ParseDAG(cmd.Context(), args[0], resolveSQL)
		if err != nil {
			return err
		}
		summary, err := service.Summarize(cfg)
		if err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <dag.yaml> <report.json>",
	Short: "Render a report without sending it",
	Long:  `Writes the email HTML, CSV attachment, Slack payload or Discord messages for one report to stdout.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		service, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		cfg, err := service.ParseDAG(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		rep, err := report.LoadFile(args[1])
		if err != nil {
			return err
		}
		err = service.Render(cmd.OutOrStdout(), rep, cfg, format)
		if errors.Is(err, email.ErrSkip) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "no matches found and skip_null is set, nothing rendered")
			return nil
		}
		return err
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify <dag.yaml> <report.json>",
	Short: "Send a report to every channel configured in the DAG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		service, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		result, err := service.RunCycle(cmd.Context(), args[0], args[1], date)
		if err != nil {
			if channel, ok := notify.IsDeliveryError(err); ok {
				return fmt.Errorf("notification aborted at %s: %w", channel, err)
			}
			return err
		}
		if result.Skipped {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s skipped: no matches\n", result.RunID)
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s delivered to: %s\n", result.RunID, strings.Join(result.Channels, ", "))
		return nil
	},
}

// varsCmd is the parent command for variable store operations
var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Inspect the variable store used by from_airflow_variable",
}

var varsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print one raw variable value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		value, err := service.Variable(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var varsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store one variable value (nats backend only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		return service.SetVariable(cmd.Context(), args[0], args[1])
	},
}

func init() {
	parseCmd.Flags().Bool("resolve-sql", false, "run from_db_select queries and inline their terms")
	renderCmd.Flags().String("format", app.FormatHTML, "output format: html, csv, slack or discord")
	notifyCmd.Flags().String("date", "", "report date used in the subject (default: today in service timezone)")

	varsCmd.AddCommand(varsGetCmd, varsSetCmd)
}
