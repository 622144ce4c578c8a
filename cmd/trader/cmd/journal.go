package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/pairtrader/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display executed trades as Org tables.

Trades come from the SQLite journal when one is configured (or --db is
given) and from the JSON trade log otherwise.

Subcommands:
  trade  - Get details of a specific trade by ID or order ID
  today  - List trades executed today
  day    - List trades executed on a specific day

Examples:
  trader journal trade <trade-id>
  trader journal today
  trader journal day 2026-03-15`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades executed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (overrides the config)")
}

// tradeSource is what the journal commands read from.
type tradeSource interface {
	Find(id string) (journal.TradeRecord, error)
	Between(start, end time.Time) ([]journal.TradeRecord, error)
	Close() error
}

type sqliteSource struct{ *journal.SQLite }

func (s sqliteSource) Find(id string) (journal.TradeRecord, error) { return s.GetTrade(id) }

func (s sqliteSource) Between(start, end time.Time) ([]journal.TradeRecord, error) {
	return s.ListTradesBetween(start, end)
}

func openTradeSource() (tradeSource, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db := journalDBPath
	if db == "" {
		db = cfg.Journal.DBPath
	}
	if db == "" {
		return journal.NewTradeLog(cfg.Storage.Path(cfg.Storage.Trades)), nil
	}
	j, err := journal.NewSQLite(db)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return sqliteSource{j}, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	src, err := openTradeSource()
	if err != nil {
		return err
	}
	defer src.Close()

	rec, err := src.Find(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Println(journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return printDay(time.Now().In(time.Local).Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return printDay(args[0])
}

func printDay(day string) error {
	src, err := openTradeSource()
	if err != nil {
		return err
	}
	defer src.Close()

	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := src.Between(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	fmt.Println(journal.FormatDayOrg(start, recs))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
