package trading

import (
	"errors"
	"fmt"

	"github.com/mkarag/aifolio/internal/domain"
)

// ErrorKind classifies why a single proposed trade was refused.
type ErrorKind string

const (
	// Validation kinds, local to one trade and never fatal to the batch
	ErrMissingField           ErrorKind = "MissingField"
	ErrInvalidShareCount      ErrorKind = "InvalidShareCount"
	ErrUnknownAction          ErrorKind = "UnknownAction"
	ErrPriceUnavailable       ErrorKind = "PriceUnavailable"
	ErrInsufficientCash       ErrorKind = "InsufficientCash"
	ErrBelowMinimumTradeValue ErrorKind = "BelowMinimumTradeValue"
	ErrInsufficientShares     ErrorKind = "InsufficientShares"

	// ErrPersistenceFailure - the ledger or order write failed; aborts that
	// trade only, already-applied trades stay applied
	ErrPersistenceFailure ErrorKind = "PersistenceFailure"
	// ErrUpstreamUnavailable - a collaborator (market session, price service)
	// could not be reached
	ErrUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
)

// TradeError is the structured per-trade failure returned to callers.
// Callers get these in the batch response, never as a bare error for
// partial failures.
type TradeError struct {
	Trade   domain.ProposedTrade `json:"trade"`
	Kind    ErrorKind            `json:"error_kind"`
	Message string               `json:"message"`
}

func (e TradeError) Error() string {
	return fmt.Sprintf("%s: %s (%s %s)", e.Kind, e.Message, e.Trade.Action, e.Trade.Ticker)
}

func newTradeError(trade domain.ProposedTrade, kind ErrorKind, format string, args ...interface{}) *TradeError {
	return &TradeError{
		Trade:   trade,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrPortfolioBusy is returned when a trade-processing run is already in
// flight for the portfolio. The caller should retry later, not wait.
var ErrPortfolioBusy = errors.New("portfolio is already processing a trade batch")
