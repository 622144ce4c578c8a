package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/pairtrader/position"
)

type Violation struct {
	Code string
	Msg  string
}

// Sizing is the outcome of planning an order.
type Sizing struct {
	Quantity       float64
	Notional       float64
	RiskAmount     float64
	EffectiveEntry float64
	EffectiveStop  float64
	Tradable       bool
	Violations     []Violation
}

func (s *Sizing) add(code, msg string) {
	s.Violations = append(s.Violations, Violation{Code: code, Msg: msg})
	s.Tradable = false
}

// Reason joins the violation codes.
func (s Sizing) Reason() string {
	out := ""
	for i, v := range s.Violations {
		if i > 0 {
			out += ","
		}
		out += v.Code
	}
	return out
}

// Sizer turns an entry and stop into an order quantity under a Policy.
type Sizer struct {
	Policy Policy
}

func NewSizer(p Policy) *Sizer {
	return &Sizer{Policy: p}
}

// Size returns the floored quantity for the configured risk, or 0 when the
// stop is on the wrong side of entry.
func (s *Sizer) Size(side position.Side, entry, stop, balance, riskPct float64) float64 {
	return s.plan(side, entry, stop, balance, riskPct).Quantity
}

// Plan sizes an entry with the policy's risk percentage and runs the
// admission checks.
func (s *Sizer) Plan(side position.Side, entry, stop, balance float64) Sizing {
	return s.plan(side, entry, stop, balance, s.Policy.RiskPct)
}

func (s *Sizer) plan(side position.Side, entry, stop, balance, riskPct float64) Sizing {
	p := s.Policy
	out := Sizing{Tradable: true}

	if entry <= 0 || stop <= 0 {
		out.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return out
	}
	if (side == position.Long && stop >= entry) || (side == position.Short && stop <= entry) {
		out.add("STOP_WRONG_SIDE", fmt.Sprintf("%s stop %.2f on wrong side of entry %.2f", side, stop, entry))
		return out
	}
	if balance <= 0 {
		out.add("NO_BALANCE", "available balance is zero")
		return out
	}

	// Fees make the entry dearer and the stop worse.
	if side == position.Long {
		out.EffectiveEntry = entry * (1 + p.FeeRate)
		out.EffectiveStop = stop * (1 - p.FeeRate)
	} else {
		out.EffectiveEntry = entry * (1 - p.FeeRate)
		out.EffectiveStop = stop * (1 + p.FeeRate)
	}

	capAmt := balance * p.BalanceCap
	out.RiskAmount = math.Min(capAmt, riskPct*capAmt)

	qty := out.RiskAmount / abs(out.EffectiveEntry-out.EffectiveStop)
	maxQty := capAmt * (1 - p.SafetyMargin) / math.Max(entry, out.EffectiveEntry)
	qty = math.Min(qty, maxQty)

	out.Quantity = FloorToStep(qty, p.LotStep)
	out.Notional = out.Quantity * entry

	if out.Notional < p.MinNotional {
		out.add("BELOW_MIN_NOTIONAL", fmt.Sprintf("notional %.2f below minimum %.2f", out.Notional, p.MinNotional))
	}
	if out.Quantity < p.MinQuantity || out.Quantity <= 0 {
		out.add("BELOW_MIN_QTY", fmt.Sprintf("quantity %.8f below minimum %.8f", out.Quantity, p.MinQuantity))
	}
	return out
}

// Admit checks an arbitrary quantity against the instrument minimums, for
// exits and averaging slices that are not sized by Plan.
func (s *Sizer) Admit(qty, price float64) Sizing {
	out := Sizing{Tradable: true, Quantity: FloorToStep(qty, s.Policy.LotStep)}
	out.Notional = out.Quantity * price
	if out.Notional < s.Policy.MinNotional {
		out.add("BELOW_MIN_NOTIONAL", fmt.Sprintf("notional %.2f below minimum %.2f", out.Notional, s.Policy.MinNotional))
	}
	if out.Quantity < s.Policy.MinQuantity || out.Quantity <= 0 {
		out.add("BELOW_MIN_QTY", fmt.Sprintf("quantity %.8f below minimum %.8f", out.Quantity, s.Policy.MinQuantity))
	}
	return out
}
