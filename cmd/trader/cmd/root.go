package cmd

import (
	"fmt"

	"github.com/rustyeddy/pairtrader/config"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A single-pair crypto trading engine",
	Long: `Trader runs a candle-driven trading cycle for one pair.

Every candle it refreshes prices, scores indicators, confirms signals over
several cycles and manages one long or short position with stops, partial
exits and risk-sized orders. State lives in JSON files so the process can be
restarted at any time.

Commands:
  run      - run the trading loop (live or --paper)
  status   - show the tracked position and profit
  config   - generate or validate configuration files
  journal  - query executed trades
  notify   - inspect and deliver queued notifications`,
	SilenceUsage: true,
}

var configPath string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML or JSON); defaults apply when empty")
}

// loadConfig reads --config, or the defaults when it is not set.
func loadConfig() (*config.Config, market.Pair, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return nil, market.Pair{}, fmt.Errorf("load config: %w", err)
		}
	}
	pair, err := market.ParsePair(cfg.Pair)
	if err != nil {
		return nil, market.Pair{}, err
	}
	cfg.Pair = pair.Name
	return cfg, pair, nil
}
