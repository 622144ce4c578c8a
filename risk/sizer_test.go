package risk

import (
	"math/rand"
	"testing"

	"github.com/rustyeddy/pairtrader/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noFeePolicy() Policy {
	p := DefaultPolicy()
	p.FeeRate = 0
	p.LotStep = 0.001
	return p
}

func TestFloorToStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		qty, step float64
		want      float64
	}{
		{"thousandths", 1.23456789, 0.001, 1.234},
		{"exact decimal", 0.3, 0.1, 0.3},
		{"no step", 5.5, 0, 5.5},
		{"negative", -1, 0.01, 0},
		{"satoshi", 0.123456789, 0.00000001, 0.12345678},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, FloorToStep(tt.qty, tt.step), 1e-12)
		})
	}
}

func TestWrongSideStopReturnsZero(t *testing.T) {
	t.Parallel()

	s := NewSizer(noFeePolicy())
	assert.Zero(t, s.Size(position.Long, 100, 101, 1000, 0.02))
	assert.Zero(t, s.Size(position.Short, 100, 99, 1000, 0.02))

	plan := s.Plan(position.Long, 100, 100, 1000)
	assert.False(t, plan.Tradable)
	assert.Equal(t, "STOP_WRONG_SIDE", plan.Reason())
}

func TestSizeIsClampedToBalance(t *testing.T) {
	t.Parallel()

	s := NewSizer(noFeePolicy())

	// risk 19 over a 1.0 stop wants 19 units; the balance allows 9.405.
	plan := s.Plan(position.Long, 100, 99, 1000)
	require.True(t, plan.Tradable, plan.Reason())
	assert.InDelta(t, 19, plan.RiskAmount, 1e-9)
	assert.InDelta(t, 9.405, plan.Quantity, 1e-9)
	assert.InDelta(t, 940.5, plan.Notional, 1e-9)

	short := s.Plan(position.Short, 100, 101, 1000)
	assert.InDelta(t, 9.405, short.Quantity, 1e-9)
}

func TestSizeFromRisk(t *testing.T) {
	t.Parallel()

	s := NewSizer(noFeePolicy())
	assert.InDelta(t, 0.95, s.Size(position.Long, 100, 90, 1000, 0.01), 1e-9)
}

func TestFeesWidenTheStop(t *testing.T) {
	t.Parallel()

	p := noFeePolicy()
	p.FeeRate = 0.006
	plan := NewSizer(p).Plan(position.Long, 100, 99, 1000)

	assert.InDelta(t, 100.6, plan.EffectiveEntry, 1e-9)
	assert.InDelta(t, 98.406, plan.EffectiveStop, 1e-9)
	assert.InDelta(t, 8.659, plan.Quantity, 1e-9)
}

func TestMinimumsBlockTinyOrders(t *testing.T) {
	t.Parallel()

	p := noFeePolicy()
	p.MinNotional = 10
	p.MinQuantity = 0.5
	plan := NewSizer(p).Plan(position.Long, 100, 99, 10)

	assert.False(t, plan.Tradable)
	codes := []string{}
	for _, v := range plan.Violations {
		codes = append(codes, v.Code)
	}
	assert.ElementsMatch(t, []string{"BELOW_MIN_NOTIONAL", "BELOW_MIN_QTY"}, codes)

	admit := NewSizer(p).Admit(0.6, 100)
	assert.True(t, admit.Tradable)
	assert.InDelta(t, 60, admit.Notional, 1e-9)
}

func TestNotionalNeverExceedsCap(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	p := DefaultPolicy()
	s := NewSizer(p)
	for i := 0; i < 2000; i++ {
		entry := 1 + rng.Float64()*100000
		dist := entry * (0.0001 + rng.Float64()*0.2)
		balance := rng.Float64() * 50000
		riskPct := rng.Float64()

		side, stop := position.Long, entry-dist
		if i%2 == 1 {
			side, stop = position.Short, entry+dist
		}
		qty := s.Size(side, entry, stop, balance, riskPct)
		assert.LessOrEqual(t, qty*entry, balance*p.BalanceCap*(1-p.SafetyMargin)+1e-6,
			"entry=%v stop=%v balance=%v", entry, stop, balance)
		assert.GreaterOrEqual(t, qty, 0.0)
	}
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, RR(100, 99, 102), 1e-12)
	assert.Zero(t, RR(100, 100, 102))
	assert.InDelta(t, 0.01, RiskPct(PlannedRisk(1, 100, 99), 100), 1e-12)
	assert.InDelta(t, 6.0, DefaultPolicy().Fee(1000), 1e-12)
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultPolicy().Validate())
	p := DefaultPolicy()
	p.BalanceCap = 1.5
	assert.Error(t, p.Validate())
}
