package cli

import (
	"fmt"
	"strings"

	"github.com/lazypower/nudge/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Adaptive reminder coaching",
	Long: "Nudge tracks how you respond to reminders and, when a task keeps getting skipped, " +
		"suggests a smaller first step and a shorter check-in. It also sorts brain dumps into an action plan.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $NUDGE_CONFIG or ~/.nudge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose development logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(suggestionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(askCmd)
}

// loadConfig reads the config file and builds the logger for a command.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return cfg, nil, err
	}
	log, err := newLogger(cfg.Logging.Level, debug)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug || strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("logging level %q: %w", level, err)
		}
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
