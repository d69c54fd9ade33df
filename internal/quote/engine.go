// Package quote converts amounts between the fiat currency and crypto
// assets, applying volume-tiered commission on the fiat leg.
package quote

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rubex-exchange/rubex/internal/commission"
	"github.com/rubex-exchange/rubex/internal/rates"
	"github.com/rubex-exchange/rubex/pkg/models"
)

// Side names which trade leg the caller fixed.
type Side string

const (
	SideGive    Side = "give"    // amount is what the user sends
	SideReceive Side = "receive" // amount is what the user wants to receive
)

var (
	// ErrUnconvertiblePair is returned when neither or both sides of
	// the pair are the fiat currency. Cross-crypto quoting always goes
	// through two fiat-pivoted quotes.
	ErrUnconvertiblePair = errors.New("pair is not convertible")
	// ErrUnknownCurrency is returned when a symbol is missing from the
	// current snapshot.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Request is one conversion to solve.
type Request struct {
	From      string
	To        string
	Amount    decimal.Decimal
	FixedSide Side
}

// Result is the solved counter-leg.
type Result struct {
	// Rate is the from/to conversion rate before commission.
	Rate decimal.Decimal
	// Amount is the counter-leg amount rounded to the result currency's
	// precision.
	Amount decimal.Decimal
	// Currency is the currency the Amount is denominated in.
	Currency string
	// CommissionRate is the applied tier rate.
	CommissionRate decimal.Decimal
}

// Compute solves the counter-leg of a fiat<->crypto conversion. It is a
// pure function of its arguments: the snapshot and schedule are
// immutable, so concurrent calls need no synchronization.
func Compute(snap *rates.Snapshot, sched *commission.Schedule, req Request) (*Result, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	srcRate, ok := snap.Rate(req.From)
	if !ok {
		return nil, ErrUnknownCurrency
	}
	tgtRate, ok := snap.Rate(req.To)
	if !ok {
		return nil, ErrUnknownCurrency
	}

	isSourceFiat := req.From == models.FiatCurrency
	isTargetFiat := req.To == models.FiatCurrency
	if isSourceFiat == isTargetFiat {
		return nil, ErrUnconvertiblePair
	}

	crypto := req.From
	if isSourceFiat {
		crypto = req.To
	}

	// Commission tiers are keyed by fiat-equivalent volume regardless
	// of which side the caller fixed.
	var fiatEquivalent decimal.Decimal
	switch {
	case req.FixedSide == SideGive && isSourceFiat,
		req.FixedSide == SideReceive && isTargetFiat:
		fiatEquivalent = req.Amount
	case req.FixedSide == SideGive:
		fiatEquivalent = req.Amount.Mul(srcRate)
	default:
		fiatEquivalent = req.Amount.Mul(tgtRate)
	}

	rate := sched.Rate(commission.Classify(crypto), fiatEquivalent)
	keep := decimal.NewFromInt(1).Sub(rate)

	var result decimal.Decimal
	var resultCurrency string
	switch {
	case req.FixedSide == SideGive && isSourceFiat:
		// Fixed fiat in, solve crypto out.
		result = req.Amount.Mul(keep).Div(tgtRate)
		resultCurrency = req.To
	case req.FixedSide == SideGive:
		// Fixed crypto in, solve fiat out.
		result = req.Amount.Mul(srcRate).Mul(keep)
		resultCurrency = req.To
	case req.FixedSide == SideReceive && isTargetFiat:
		// Fixed fiat out, solve crypto in.
		result = req.Amount.Div(keep).Div(srcRate)
		resultCurrency = req.From
	default:
		// Fixed crypto out, solve fiat in.
		result = req.Amount.Mul(tgtRate).Div(keep)
		resultCurrency = req.From
	}

	return &Result{
		Rate:           srcRate.Div(tgtRate),
		Amount:         Round(result, resultCurrency),
		Currency:       resultCurrency,
		CommissionRate: rate,
	}, nil
}
