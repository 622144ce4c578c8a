package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/pairtrader/pkg/id"
	"github.com/stretchr/testify/assert"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 15, 10, 30, 45, 0, time.UTC)
	trade := sampleTrade("01HZX5ABCDEF", ts, 3.76)

	result := FormatTradeOrg(trade)

	assert.Contains(t, result, "** SELL BTC-USD (01HZX5AB)")
	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":ID: 01HZX5ABCDEF")
	assert.Contains(t, result, ":ORDER_ID: ord-01HZX5ABCDEF")
	assert.Contains(t, result, ":TIME: 2026-03-15T10:30:45Z")
	assert.Contains(t, result, ":QUANTITY: 0.01500000")
	assert.Contains(t, result, ":PNL: 3.76")
	assert.Contains(t, result, ":REASON: take_profit")
	assert.Contains(t, result, ":END:")
	assert.True(t, strings.HasSuffix(result, "*** Notes\n- \n"))
}

func TestFormatTradeOrgFallsBackToOrderID(t *testing.T) {
	t.Parallel()

	result := FormatTradeOrg(TradeRecord{OrderID: "abc", Action: ActionBuy, Pair: "BTC-USD"})
	assert.Contains(t, result, "** BUY BTC-USD (abc)")
	assert.NotContains(t, result, ":SIDE:")
	assert.NotContains(t, result, ":TIME:")
}

func TestFormatTradeOrgTimeFromID(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 15, 10, 30, 45, 0, time.UTC)
	result := FormatTradeOrg(TradeRecord{ID: id.NewAt(ts), Action: ActionBuy, Pair: "BTC-USD"})
	assert.Contains(t, result, ":TIME: 2026-03-15T10:30:45Z")
}

func TestFormatDayOrg(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	trades := []TradeRecord{
		sampleTrade("a", day.Add(time.Hour), 10),
		sampleTrade("b", day.Add(2*time.Hour), -4),
	}

	result := FormatDayOrg(day, trades)
	assert.True(t, strings.HasPrefix(result, "* 2026-03-15 Sun\n"))
	assert.Contains(t, result, "| 2 | 1 | 1 | 10.00 | 4.00 | 1.92 | 4.08 |")
	assert.Equal(t, 2, strings.Count(result, ":PROPERTIES:"))

	empty := FormatDayOrg(day, nil)
	assert.Contains(t, empty, "| 0 | 0 | 0 |")
	assert.NotContains(t, empty, ":PROPERTIES:")
}
