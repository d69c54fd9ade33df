// Package commission maps asset classes and fiat-equivalent volumes to
// commission rates via administrator-editable tier tables.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rubex-exchange/rubex/pkg/models"
)

// AssetClass selects which tier table applies to a currency.
type AssetClass string

const (
	ClassStablecoin    AssetClass = "usdt"
	ClassPrimaryCrypto AssetClass = "btc"
	ClassOther         AssetClass = "alt"
)

// Classify buckets a currency symbol into its commission asset class.
// The fiat currency itself falls into ClassOther; it is never the
// commission-bearing side of a pair.
func Classify(symbol string) AssetClass {
	switch symbol {
	case "USDT":
		return ClassStablecoin
	case "BTC":
		return ClassPrimaryCrypto
	default:
		return ClassOther
	}
}

// Tier is one half-open volume range [Min, Max) with its rate.
type Tier struct {
	Min  decimal.Decimal
	Max  decimal.Decimal
	Rate decimal.Decimal
}

// Schedule holds the ordered tier list per asset class. A Schedule
// value is immutable once built; lookups are safe without locking.
type Schedule struct {
	tables map[AssetClass][]Tier
}

// NewSchedule builds a schedule from per-class tier lists.
func NewSchedule(tables map[AssetClass][]Tier) *Schedule {
	return &Schedule{tables: tables}
}

// Tiers returns the tier list for a class.
func (s *Schedule) Tiers(class AssetClass) []Tier {
	return s.tables[class]
}

// Rate returns the commission rate for an asset class at a
// fiat-equivalent amount. Amounts below the lowest tier clamp to the
// lowest tier's rate; amounts at or above the highest tier's maximum
// clamp to the highest tier's rate.
func (s *Schedule) Rate(class AssetClass, fiatAmount decimal.Decimal) decimal.Decimal {
	tiers := s.tables[class]
	if len(tiers) == 0 {
		tiers = s.tables[ClassOther]
	}
	if len(tiers) == 0 {
		return decimal.Zero
	}
	for _, t := range tiers {
		if fiatAmount.GreaterThanOrEqual(t.Min) && fiatAmount.LessThan(t.Max) {
			return t.Rate
		}
	}
	if fiatAmount.LessThan(tiers[0].Min) {
		return tiers[0].Rate
	}
	return tiers[len(tiers)-1].Rate
}

// ValidateTiers checks a replacement tier list: rates in [0,1),
// min < max, ascending and non-overlapping ranges.
func ValidateTiers(tiers []models.CommissionTier) error {
	one := decimal.NewFromInt(1)
	for i, t := range tiers {
		if t.Rate.IsNegative() || t.Rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("tier %d: commission rate must be in [0,1)", i)
		}
		if !t.Min.LessThan(t.Max) {
			return fmt.Errorf("tier %d: min must be less than max", i)
		}
		if i > 0 && t.Min.LessThan(tiers[i-1].Max) {
			return fmt.Errorf("tier %d: overlaps previous tier", i)
		}
	}
	return nil
}

func tier(min, max int64, rate string) Tier {
	return Tier{
		Min:  decimal.NewFromInt(min),
		Max:  decimal.NewFromInt(max),
		Rate: decimal.RequireFromString(rate),
	}
}

// DefaultSchedule is the schedule seeded on first boot when no
// administrator configuration exists yet.
func DefaultSchedule() *Schedule {
	return NewSchedule(map[AssetClass][]Tier{
		ClassStablecoin: {
			tier(5000, 50000, "0.04"),
			tier(50000, 100000, "0.03"),
			tier(100000, 10000000, "0.025"),
		},
		ClassPrimaryCrypto: {
			tier(5000, 50000, "0.06"),
			tier(50000, 100000, "0.05"),
			tier(100000, 10000000, "0.04"),
		},
		ClassOther: {
			tier(5000, 100000, "0.05"),
			tier(100000, 10000000, "0.06"),
		},
	})
}
