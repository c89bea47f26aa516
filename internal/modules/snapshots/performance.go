package snapshots

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// PerformanceReport summarizes a portfolio's snapshot history.
// Statistics run on float64 because they are descriptive, not accounting;
// the underlying snapshot amounts stay exact.
type PerformanceReport struct {
	Days             int     `json:"days"`
	StartValue       string  `json:"start_value"`
	EndValue         string  `json:"end_value"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	MeanDailyReturn  float64 `json:"mean_daily_return_pct"`
	DailyVolatility  float64 `json:"daily_volatility_pct"`
	AnnualizedReturn float64 `json:"annualized_return_pct"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	BestDayPct       float64 `json:"best_day_pct"`
	WorstDayPct      float64 `json:"worst_day_pct"`
}

const tradingDaysPerYear = 252

// ComputePerformance derives summary statistics from snapshot history.
// Needs at least two snapshots to produce a return series.
func ComputePerformance(history []Snapshot) (*PerformanceReport, error) {
	if len(history) < 2 {
		return nil, fmt.Errorf("need at least 2 snapshots, have %d", len(history))
	}

	values := make([]float64, len(history))
	for i, s := range history {
		values[i], _ = s.TotalValue.Float64()
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("no usable return series")
	}

	mean, std := stat.MeanStdDev(returns, nil)
	if math.IsNaN(std) {
		std = 0
	}

	best, worst := returns[0], returns[0]
	for _, r := range returns[1:] {
		if r > best {
			best = r
		}
		if r < worst {
			worst = r
		}
	}

	report := &PerformanceReport{
		Days:             len(history),
		StartValue:       history[0].TotalValue.String(),
		EndValue:         history[len(history)-1].TotalValue.String(),
		MeanDailyReturn:  mean * 100,
		DailyVolatility:  std * 100,
		AnnualizedReturn: (math.Pow(1+mean, tradingDaysPerYear) - 1) * 100,
		MaxDrawdownPct:   maxDrawdown(values) * 100,
		BestDayPct:       best * 100,
		WorstDayPct:      worst * 100,
	}
	if values[0] != 0 {
		report.TotalReturnPct = (values[len(values)-1]/values[0] - 1) * 100
	}

	return report, nil
}

// maxDrawdown returns the largest peak-to-trough decline as a negative fraction
func maxDrawdown(values []float64) float64 {
	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := v/peak - 1
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
