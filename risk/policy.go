package risk

import "fmt"

type Policy struct {
	// RiskPct is the fraction of the capped balance put at risk per entry.
	RiskPct float64 `json:"risk_pct" yaml:"risk_pct"`

	// BalanceCap is the share of the quote balance that may be committed.
	BalanceCap   float64 `json:"balance_cap" yaml:"balance_cap"`
	SafetyMargin float64 `json:"safety_margin" yaml:"safety_margin"`
	FeeRate      float64 `json:"fee_rate" yaml:"fee_rate"`

	// Instrument constraints.
	LotStep     float64 `json:"lot_step" yaml:"lot_step"`
	MinNotional float64 `json:"min_notional" yaml:"min_notional"`
	MinQuantity float64 `json:"min_quantity" yaml:"min_quantity"`
}

func DefaultPolicy() Policy {
	return Policy{
		RiskPct:      0.02,
		BalanceCap:   0.95,
		SafetyMargin: 0.01,
		FeeRate:      0.006,
		LotStep:      0.00000001,
		MinNotional:  1,
		MinQuantity:  0.00001,
	}
}

func (p Policy) Validate() error {
	if p.RiskPct <= 0 || p.RiskPct > 1 {
		return fmt.Errorf("risk.risk_pct must be within (0, 1]")
	}
	if p.BalanceCap <= 0 || p.BalanceCap > 1 {
		return fmt.Errorf("risk.balance_cap must be within (0, 1]")
	}
	if p.SafetyMargin < 0 || p.SafetyMargin >= 1 {
		return fmt.Errorf("risk.safety_margin must be within [0, 1)")
	}
	if p.FeeRate < 0 || p.FeeRate >= 0.1 {
		return fmt.Errorf("risk.fee_rate must be within [0, 0.1)")
	}
	if p.LotStep < 0 || p.MinNotional < 0 || p.MinQuantity < 0 {
		return fmt.Errorf("risk instrument constraints must not be negative")
	}
	return nil
}

// Fee is the fee charged on a fill worth quote.
func (p Policy) Fee(quote float64) float64 {
	return abs(quote) * p.FeeRate
}
