package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	assert.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, tradesPath))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, equityPath))
}

func TestCSVJournalAppendsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")
	ts := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		j, err := NewCSV(tradesPath, equityPath)
		require.NoError(t, err)
		require.NoError(t, j.RecordTrade(sampleTrade("x", ts, 1.5)))
		require.NoError(t, j.RecordEquity(EquitySnapshot{Time: ts, Price: 100, Base: 0.5, Quote: 10, Equity: 60}))
		require.NoError(t, j.Close())
	}

	rows := readCSV(t, tradesPath)
	require.Len(t, rows, 3, "one header and two rows")
	assert.Equal(t, "2026-05-02T08:00:00Z", rows[1][1])
	assert.Equal(t, "0.01500000", rows[1][6])
	assert.Equal(t, "1.500000", rows[2][11])

	eq := readCSV(t, equityPath)
	require.Len(t, eq, 3)
	assert.Equal(t, "60.000000", eq[1][4])
}
