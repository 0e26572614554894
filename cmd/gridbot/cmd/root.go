package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/config"
	"github.com/rustyeddy/gridbot/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "gridbot",
	Short: "A DCA grid ladder bot for perpetual futures",
	Long: `Gridbot averages into a position on a fixed ladder of safety orders and
closes the whole position at a take-profit above the average entry.

It provides tools for:
  - Backtesting a ladder against historical bars
  - Running the ladder live against Binance USD-M futures
  - Generating and validating configuration files
  - Querying the trade journal`,
	SilenceUsage: true,
}

var (
	cfgPath  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level from the config")
}

// loadConfig reads --config, or the defaults when it is not set.
func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.Log
	if logLevel != "" {
		lc.Level = logLevel
	}
	return logging.New(lc)
}
