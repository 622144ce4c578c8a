package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedRisk is the quote-currency loss if the stop is hit.
func PlannedRisk(qty, entry, stop float64) float64 {
	return qty * abs(entry-stop)
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

func RiskPct(plannedRisk, balance float64) float64 {
	if balance <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / balance
}

// FloorToStep rounds qty down to a multiple of step. A non-positive step
// leaves qty unchanged.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 || qty <= 0 {
		return math.Max(qty, 0)
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(qty).Div(s).Floor().Mul(s).InexactFloat64()
}
