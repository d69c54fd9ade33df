package quote

import (
	"github.com/shopspring/decimal"

	"github.com/rubex-exchange/rubex/pkg/models"
)

// decimalPlaces is the display precision per currency. The fiat
// currency carries no fractional minor units.
var decimalPlaces = map[string]int32{
	models.FiatCurrency: 0,
	"BTC":               8,
	"ETH":               8,
	"LTC":               8,
	"USDT":              2,
	"TRX":               2,
	"DOGE":              2,
	"USDC":              2,
	"DAI":               2,
	"ADA":               2,
	"TON":               4,
	"XMR":               4,
	"SOL":               4,
}

const defaultDecimalPlaces = 6

// DecimalPlaces returns the configured precision for a currency, or the
// default for unlisted assets.
func DecimalPlaces(symbol string) int32 {
	if places, ok := decimalPlaces[symbol]; ok {
		return places
	}
	return defaultDecimalPlaces
}

// Round rounds an amount to the currency's precision: whole units for
// fiat, configured decimal places otherwise.
func Round(amount decimal.Decimal, symbol string) decimal.Decimal {
	return amount.Round(DecimalPlaces(symbol))
}

// Format renders an amount for the API boundary. Trailing fractional
// zeros are stripped.
func Format(amount decimal.Decimal, symbol string) string {
	return Round(amount, symbol).String()
}
