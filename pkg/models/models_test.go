package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsFiatLeg(t *testing.T) {
	assert.True(t, IsFiatLeg("RUB"))
	assert.True(t, IsFiatLeg("rub"))
	assert.True(t, IsFiatLeg("SBER"))
	assert.True(t, IsFiatLeg("T-BANK"))
	assert.True(t, IsFiatLeg("SBP"))
	assert.False(t, IsFiatLeg("USDT"))
	assert.False(t, IsFiatLeg("BTC"))
}

func TestFiatLegAmount(t *testing.T) {
	give := &Order{
		AmountGive: decimal.NewFromInt(10000), CurrencyGive: "RUB",
		AmountReceive: decimal.RequireFromString("106.67"), CurrencyReceive: "USDT",
	}
	assert.Equal(t, "10000", give.FiatLegAmount().String())

	receive := &Order{
		AmountGive: decimal.NewFromInt(100), CurrencyGive: "USDT",
		AmountReceive: decimal.NewFromInt(8640), CurrencyReceive: "SBER",
	}
	assert.Equal(t, "8640", receive.FiatLegAmount().String())

	cryptoOnly := &Order{
		AmountGive: decimal.NewFromInt(1), CurrencyGive: "BTC",
		AmountReceive: decimal.NewFromInt(60000), CurrencyReceive: "USDT",
	}
	assert.True(t, cryptoOnly.FiatLegAmount().IsZero())
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusNew, StatusInProgress, StatusCompleted, StatusCancelled} {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus(Status("done")))
	assert.False(t, ValidStatus(Status("")))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusNew.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
