// Package cli implements the docrag command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docrag/internal/config"
	"docrag/internal/logger"
)

var (
	cfgFile       string
	verboseFlag   bool
	currentConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "docrag",
	Short:         "docrag: retrieval-augmented question answering over technical documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var (
			cfg  *config.AppConfig
			path string
			err  error
		)
		if cfgFile == "" {
			cfg, path, err = config.LoadDefault()
		} else {
			path = cfgFile
			cfg, err = config.Load(cfgFile)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = verboseFlag
		}
		logger.SetVerbose(cfg.Verbose)
		if err := logger.Init(cfg.LogFile); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logger.Debug("config loaded from %s", path)
		currentConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("%v", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config (default ./config.yaml or ~/.config/docrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

// withApp assembles the application for one command and closes it after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := NewApp(ctx, currentConfig)
	if err != nil {
		return err
	}
	runErr := fn(ctx, app)
	if err := app.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close index: %w", err)
	}
	return runErr
}
