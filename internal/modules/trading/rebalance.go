package trading

import "github.com/mkarag/aifolio/internal/modules/holdings"

// Mode is the advisory rebalance mode handed to the decision-generation step.
type Mode string

const (
	ModeNewPortfolio Mode = "NEW_PORTFOLIO"
	ModeRebalance    Mode = "REBALANCE"
)

// Fixed instruction strings per mode. Advisory context only; nothing in the
// engine branches on them.
const (
	instructionNewPortfolio = "Build a new portfolio from the available cash. " +
		"Propose an initial set of positions sized to the starting capital."
	instructionRebalance = "Review the existing positions and propose trades to " +
		"rebalance the portfolio. Trim overweight positions and add to underweight ones."
)

// SelectPolicy chooses the rebalance mode for a portfolio.
//
// REBALANCE iff the portfolio already holds positions, otherwise
// NEW_PORTFOLIO. No other signal participates.
func SelectPolicy(positions []holdings.Holding) (Mode, string) {
	if len(positions) > 0 {
		return ModeRebalance, instructionRebalance
	}
	return ModeNewPortfolio, instructionNewPortfolio
}
