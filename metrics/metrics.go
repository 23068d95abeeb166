package metrics

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
)

// infinity is the json form of an unbounded profit factor.
const infinity = "Infinity"

// ProfitFactor represents gross profit over gross loss. It is +Inf when a ledger has
// winning trades and no losing ones.
type ProfitFactor float64

// Unbounded reports whether the profit factor is infinite.
func (p ProfitFactor) Unbounded() bool {
	return math.IsInf(float64(p), 1)
}

// String stringifies the profit factor.
func (p ProfitFactor) String() string {
	if p.Unbounded() {
		return infinity
	}

	return strconv.FormatFloat(float64(p), 'f', 2, 64)
}

// MarshalJSON encodes unbounded profit factors as the "Infinity" sentinel.
func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	if p.Unbounded() {
		return json.Marshal(infinity)
	}

	return json.Marshal(float64(p))
}

// UnmarshalJSON decodes profit factors, including the "Infinity" sentinel.
func (p *ProfitFactor) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil && s == infinity {
		*p = ProfitFactor(math.Inf(1))
		return nil
	}

	var f float64
	err := json.Unmarshal(b, &f)
	if err != nil {
		return err
	}

	*p = ProfitFactor(f)
	return nil
}

// Summary represents the performance metrics of a trade ledger.
type Summary struct {
	TotalTrades        int          `json:"totalTrades"`
	WinningTrades      int          `json:"winningTrades"`
	LosingTrades       int          `json:"losingTrades"`
	WinRate            float64      `json:"winRate"`
	ProfitFactor       ProfitFactor `json:"profitFactor"`
	GrossProfit        float64      `json:"grossProfit"`
	GrossLoss          float64      `json:"grossLoss"`
	TotalPNL           float64      `json:"totalPnl"`
	AverageTrade       float64      `json:"averageTrade"`
	MaxDrawdown        float64      `json:"maxDrawdown"`
	MaxDrawdownPercent float64      `json:"maxDrawdownPercent"`
	Sharpe             float64      `json:"sharpe"`
}

// Calculate derives the performance metrics of the provided trades and equity curve.
func Calculate(trades []position.Trade, equity []shared.EquityPoint) Summary {
	var summary Summary

	for idx := range trades {
		pnl := trades[idx].PNL
		summary.TotalPNL += pnl
		switch {
		case pnl > 0:
			summary.WinningTrades++
			summary.GrossProfit += pnl
		case pnl < 0:
			summary.LosingTrades++
			summary.GrossLoss += pnl
		}
	}

	summary.TotalTrades = len(trades)
	if summary.TotalTrades > 0 {
		summary.WinRate = float64(summary.WinningTrades) / float64(summary.TotalTrades)
		summary.AverageTrade = summary.TotalPNL / float64(summary.TotalTrades)
	}

	switch {
	case summary.GrossLoss < 0:
		summary.ProfitFactor = ProfitFactor(summary.GrossProfit / math.Abs(summary.GrossLoss))
	case summary.GrossProfit > 0:
		summary.ProfitFactor = ProfitFactor(math.Inf(1))
	}

	summary.MaxDrawdown, summary.MaxDrawdownPercent = MaxDrawdown(equity)
	summary.Sharpe = Sharpe(equity)

	return summary
}

// MaxDrawdown returns the largest peak to trough decline of the equity curve in absolute
// terms, and the largest decline as a percent of its peak, in a single left to right pass.
// The two maxima are tracked independently and need not come from the same decline.
func MaxDrawdown(equity []shared.EquityPoint) (float64, float64) {
	if len(equity) == 0 {
		return 0, 0
	}

	var maxDrawdown, maxDrawdownPercent float64
	peak := equity[0].Equity
	for idx := range equity {
		value := equity[idx].Equity
		if value > peak {
			peak = value
		}

		drawdown := peak - value
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		if peak > 0 {
			percent := (drawdown / peak) * 100
			if percent > maxDrawdownPercent {
				maxDrawdownPercent = percent
			}
		}
	}

	return maxDrawdown, maxDrawdownPercent
}

// Sharpe returns the unannualized Sharpe style ratio of the equity curve: the mean of
// point to point returns over their sample standard deviation. It is zero when the
// curve is too short or flat.
func Sharpe(equity []shared.EquityPoint) float64 {
	if len(equity) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for idx := 1; idx < len(equity); idx++ {
		prev := equity[idx-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[idx].Equity-prev)/prev)
	}

	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}

	return mean / stddev
}
