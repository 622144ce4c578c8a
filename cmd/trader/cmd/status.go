package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/pairtrader/engine"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tracked position and cumulative profit",
	Long: `Read the state files and print the open position, cumulative profit and
the most recent trades. Nothing is sent to the exchange.

Example:
  trader status --config trader.yaml`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusJSON   bool
	statusTrades int
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
	statusCmd.Flags().IntVarP(&statusTrades, "trades", "n", 5, "recent trades to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, pair, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openState(cfg, pair, logging.Nop())
	if err != nil {
		return err
	}
	s := engine.Status{
		Pair:     pair.Name,
		Position: st.Ledger.Position(),
		Gates:    st.Gate.Counters(),
		Profit:   st.Profit.Profit(),
	}

	trades, err := journal.NewTradeLog(cfg.Storage.Path(cfg.Storage.Trades)).Read()
	if err != nil {
		return fmt.Errorf("read trade log: %w", err)
	}
	if len(trades) > statusTrades {
		trades = trades[len(trades)-statusTrades:]
	}

	if statusJSON {
		out, err := json.MarshalIndent(struct {
			engine.Status
			Trades []journal.TradeRecord `json:"trades"`
		}{s, trades}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Pair:   %s\n", s.Pair)
	if p := s.Position; p != nil {
		fmt.Printf("Position: %s %.8f @ %.2f (opened %s)\n", p.Side, p.Quantity, p.WeightedEntryPrice, p.OpenedAt.Format("2006-01-02 15:04"))
		fmt.Printf("  Stop: %.2f  Target: %.2f", p.StopLossPrice, p.TakeProfitPrice)
		if p.TrailingActive && p.TrailingStopPrice != nil {
			fmt.Printf("  Trailing: %.2f", *p.TrailingStopPrice)
		}
		fmt.Printf("\n  Average-ins: %d  Transactions: %d\n", p.AverageIns, len(p.Transactions))
		if p.ConfirmationState != "" {
			fmt.Printf("  Gates at last save: %s\n", p.ConfirmationState)
		}
	} else {
		fmt.Println("Position: flat")
	}
	fmt.Printf("Cumulative profit: %.2f %s\n", s.Profit, pair.Quote)

	if len(trades) > 0 {
		fmt.Println()
		fmt.Print(journal.FormatTradesOrg(trades))
	}
	return nil
}
