package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sileric/mbwatch/internal/config"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

// buildLogger derives the zap configuration from flags and the logging
// section: --verbose forces a development config at debug level,
// otherwise production at the configured level, plus an optional file
// sink in the log directory.
func buildLogger(logCfg *config.LoggingConfig) (*zap.Logger, error) {
	if verbose {
		zc := zap.NewDevelopmentConfig()
		return zc.Build()
	}

	zc := zap.NewProductionConfig()
	zc.DisableStacktrace = true

	level := zapcore.InfoLevel
	if logCfg != nil && logCfg.Level != "" {
		if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if logCfg != nil && logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(logCfg.Directory, "mbwatchd.log"))
	}

	return zc.Build()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mbwatchd",
		Short:         "Mirror market board prices from the aggregator feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Help and completion run without a config file.
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, err = buildLogger(nil)
				return err
			}

			loaded, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded

			logger, err = buildLogger(&cfg.Logging)
			return err
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("MBWATCH_CONFIG"), "config file path (or set MBWATCH_CONFIG)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(runCmd(), backfillCmd(), worldsCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
