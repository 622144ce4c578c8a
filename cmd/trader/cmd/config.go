package cmd

import (
	"fmt"

	"github.com/rustyeddy/pairtrader/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage trader configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  trader config init -o trader.yaml
  trader config validate -f trader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings.

Example:
  trader config init -o trader.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  trader config validate -f trader.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "trader.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  trader run --config %s --paper\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Pair: %s every %s\n", cfg.Pair, cfg.Candles.Granularity)
	fmt.Printf("  Endpoints: %d (key from $%s)\n", len(cfg.Exchange.Endpoints), cfg.Exchange.APIKeyEnv)
	fmt.Printf("  Risk: %.1f%% per entry, stop %.2f%%, target %.2f%%\n",
		cfg.Risk.RiskPct*100, cfg.Position.StopLossPct*100, cfg.Position.TakeProfitPct*100)
	fmt.Printf("  Confirmation: buy %d, sell %d, short %d, cover %d\n",
		cfg.Confirmation.BuyRequired, cfg.Confirmation.SellRequired, cfg.Confirmation.ShortRequired, cfg.Confirmation.CoverRequired)
	fmt.Printf("  Shorts: %v  Post-only: %v\n", cfg.Trading.AllowShort, cfg.Orders.PostOnly)
	fmt.Printf("  State: %s\n", cfg.Storage.Dir)
	return nil
}
