package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridbot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage gridbot configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  gridbot config init -o gridbot.yaml
  gridbot config validate -f gridbot.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "gridbot.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  gridbot backtest -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Symbol: %s\n", cfg.Symbol)
	fmt.Fprintf(out, "  Long: base $%.2f, %d safety orders, step %.2f%%, scale %.2f, cap $%.2f\n",
		cfg.Long.BaseNotional, cfg.Long.MaxLevels, cfg.Long.StepPct*100, cfg.Long.VolumeScale, cfg.Long.MaxPositionNotional)
	fmt.Fprintf(out, "  Take profit: %s %.2f%%\n", cfg.TakeProfit.Policy, cfg.Long.TakeProfitPct*100)
	if cfg.Flip.Enabled {
		fmt.Fprintf(out, "  Flip: RSI(%d) > %.0f, cooldown %ds\n", cfg.Flip.RSIPeriod, cfg.Flip.RSIThreshold, cfg.Flip.CooldownSeconds)
	}
	if deepest := cfg.Long.DeepestAffordable(cfg.Risk.Epsilon); deepest < cfg.Long.MaxLevels-1 {
		fmt.Fprintf(out, "  Warning: max_position_notional stops the ladder at level %d of %d\n", deepest, cfg.Long.MaxLevels-1)
	}
	return nil
}
