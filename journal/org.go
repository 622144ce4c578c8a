package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/pairtrader/pkg/id"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable for pasting into a journal.
// Structured facts go in a PROPERTIES drawer; the Notes heading is left for the reader.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %s (%s)", t.Action, t.Pair, shortID(recordID(t)))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", recordID(t)))
	if t.OrderID != "" {
		b.WriteString(fmt.Sprintf(":ORDER_ID: %s\n", t.OrderID))
	}
	if ts := tradeTime(t); !ts.IsZero() {
		b.WriteString(fmt.Sprintf(":TIME: %s\n", ts.Format(time.RFC3339)))
	}
	b.WriteString(fmt.Sprintf(":PAIR: %s\n", t.Pair))
	if t.Side != "" {
		b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	}
	b.WriteString(fmt.Sprintf(":PRICE: %.2f\n", t.Price))
	b.WriteString(fmt.Sprintf(":QUANTITY: %.8f\n", t.Quantity))
	b.WriteString(fmt.Sprintf(":QUOTE_AMOUNT: %.2f\n", t.QuoteAmount))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.2f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":PNL: %.2f\n", t.PnL))
	b.WriteString(fmt.Sprintf(":FEE: %.2f\n", t.Fee))
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Notes\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatDayOrg renders a dated heading with a summary table and the day's
// trades beneath it.
func FormatDayOrg(day time.Time, trades []TradeRecord) string {
	s := Summarize(trades)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("* %s\n", day.Format("2006-01-02 Mon")))
	b.WriteString("| trades | wins | losses | gross profit | gross loss | fees | net |\n")
	b.WriteString("|-\n")
	b.WriteString(fmt.Sprintf("| %d | %d | %d | %.2f | %.2f | %.2f | %.2f |\n",
		s.Trades, s.Wins, s.Losses, s.GrossProfit, s.GrossLoss, s.Fees, s.Net))
	if len(trades) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatTradesOrg(trades))
	}
	return b.String()
}

func recordID(t TradeRecord) string {
	if t.ID != "" {
		return t.ID
	}
	return t.OrderID
}

// tradeTime falls back to the time encoded in the record's ID for records
// written without a timestamp.
func tradeTime(t TradeRecord) time.Time {
	if !t.Timestamp.IsZero() {
		return t.Timestamp.UTC()
	}
	ts, err := id.Time(recordID(t))
	if err != nil {
		return time.Time{}
	}
	return ts
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
