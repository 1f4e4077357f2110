// Package main provides the ghostcandle CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/richinex/ghostcandle/cli"
	"github.com/richinex/ghostcandle/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	dbPath     string
	verbose    bool

	app    *cli.App
	logger *zap.Logger
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := cli.Explain(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ghostcandle",
		Short: "Project ghost candles from chart screenshots",
		Long: `Read a price chart screenshot with a generative model, optionally ground it
with live news, and project the next ten daily candles ("ghost candles").

Requests run through an ordered pipeline of models: transient failures are
retried on the same model, rate limits and overloads switch to the next one,
and bad credentials stop immediately.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				settings.Storage.Path = dbPath
			}

			logger, err = cli.NewLogger(settings.Logging.Level, verbose)
			if err != nil {
				return err
			}
			app = cli.New(settings, logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if err := app.Close(); err != nil {
					logger.Warn("failed to close history database", zap.Error(err))
				}
			}
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(newsCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(backtestCmd())
	rootCmd.AddCommand(rescoreCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(modelsCmd())

	return rootCmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [image]",
		Short: "Print the technical analysis of a chart screenshot",
		Long: `Analyze a chart screenshot (PNG, JPEG, GIF or WebP, or a file holding a
data URL). Use "-" to read the image from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Analyze(cmd.Context(), args[0])
		},
	}
}

func newsCmd() *cobra.Command {
	var technicalContext string

	cmd := &cobra.Command{
		Use:   "news [ticker]",
		Short: "Fetch recent news and sentiment for a ticker",
		Long: `Search the web for recent news on a ticker. When no model can answer, a
placeholder marked "unavailable" is printed instead of an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.News(cmd.Context(), args[0], technicalContext)
		},
	}

	cmd.Flags().StringVar(&technicalContext, "context", "", "Technical backdrop to focus the search")

	return cmd
}

func simulateCmd() *cobra.Command {
	var opts cli.SimulateOptions

	cmd := &cobra.Command{
		Use:   "simulate [image]",
		Short: "Analyze a chart and project ten ghost candles",
		Long: `Analyze a chart, optionally fetch market news, and project the next ten
daily candles. Without --scenario (or with --scenario baseline) the most
probable continuation is projected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ImagePath = args[0]
			return app.Simulate(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Scenario, "scenario", "s", "baseline", "Scenario to simulate")
	cmd.Flags().StringVarP(&opts.Ticker, "ticker", "t", "", "Override the ticker read from the chart")
	cmd.Flags().BoolVarP(&opts.WithNews, "news", "n", false, "Ground the simulation with market news")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Save the simulation to history")

	return cmd
}

func backtestCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "backtest [simulation-id] [actual-image]",
		Short: "Score a saved simulation against what actually happened",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Backtest(cmd.Context(), args[0], args[1], save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Record the score in history")

	return cmd
}

func rescoreCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "rescore [actual-image] [simulation-id...]",
		Short: "Score several saved simulations against one outcome chart",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Rescore(cmd.Context(), args[0], args[1:], save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Record the scores in history")

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved simulations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved simulations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.HistoryList(cmd.Context(), limit)
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum entries to show (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show [id|prefix]",
		Short: "Show a saved simulation and its backtests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.HistoryShow(cmd.Context(), args[0])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id|prefix]",
		Short: "Delete a saved simulation and its backtests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.HistoryDelete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(listCmd, showCmd, deleteCmd)
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the model pipeline and per-operation limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Models()
		},
	}
}
