package quote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubex-exchange/rubex/internal/commission"
	"github.com/rubex-exchange/rubex/internal/rates"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSnapshot() *rates.Snapshot {
	return &rates.Snapshot{
		Rates: map[string]decimal.Decimal{
			"RUB":  d("1"),
			"USDT": d("90"),
			"BTC":  d("6000000"),
			"TON":  d("500"),
		},
		Timestamp: time.Now(),
	}
}

func TestComputeFixedFiatGive(t *testing.T) {
	// 10000 RUB in at 90 RUB/USDT: tier rate 4%, so the user receives
	// 10000 * 0.96 / 90 = 106.666... rounded to 106.67 USDT.
	res, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From:      "RUB",
		To:        "USDT",
		Amount:    d("10000"),
		FixedSide: SideGive,
	})
	require.NoError(t, err)
	assert.Equal(t, "USDT", res.Currency)
	assert.Equal(t, "106.67", res.Amount.String())
	assert.True(t, d("0.04").Equal(res.CommissionRate))
}

func TestComputeFixedCryptoGive(t *testing.T) {
	// 100 USDT in: fiat equivalent 9000 falls in the 4% tier, the user
	// receives 100 * 90 * 0.96 = 8640 RUB.
	res, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From:      "USDT",
		To:        "RUB",
		Amount:    d("100"),
		FixedSide: SideGive,
	})
	require.NoError(t, err)
	assert.Equal(t, "RUB", res.Currency)
	assert.Equal(t, "8640", res.Amount.String())
}

func TestComputeFixedCryptoReceive(t *testing.T) {
	// User wants 100 USDT out: they must send 100 * 90 / 0.96 = 9375 RUB.
	res, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From:      "RUB",
		To:        "USDT",
		Amount:    d("100"),
		FixedSide: SideReceive,
	})
	require.NoError(t, err)
	assert.Equal(t, "RUB", res.Currency)
	assert.Equal(t, "9375", res.Amount.String())
}

func TestComputeFixedFiatReceive(t *testing.T) {
	// User wants 9000 RUB out of USDT: they must send
	// 9000 / 0.96 / 90 = 104.166... rounded to 104.17 USDT.
	res, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From:      "USDT",
		To:        "RUB",
		Amount:    d("9000"),
		FixedSide: SideReceive,
	})
	require.NoError(t, err)
	assert.Equal(t, "USDT", res.Currency)
	assert.Equal(t, "104.17", res.Amount.String())
}

func TestComputeTierSelectionByFiatEquivalent(t *testing.T) {
	// 0.01 BTC at 6M RUB/BTC is 60000 RUB of volume, landing in the
	// primary-crypto 5% tier rather than the 6% entry tier.
	res, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From:      "BTC",
		To:        "RUB",
		Amount:    d("0.01"),
		FixedSide: SideGive,
	})
	require.NoError(t, err)
	assert.True(t, d("0.05").Equal(res.CommissionRate))
	assert.Equal(t, "57000", res.Amount.String())
}

func TestComputeRoundTripNeverExceedsInput(t *testing.T) {
	snap := testSnapshot()
	sched := commission.DefaultSchedule()

	for _, amount := range []string{"5000", "10000", "49999", "120000", "2500000"} {
		out, err := Compute(snap, sched, Request{
			From: "RUB", To: "USDT", Amount: d(amount), FixedSide: SideGive,
		})
		require.NoError(t, err)

		back, err := Compute(snap, sched, Request{
			From: "USDT", To: "RUB", Amount: out.Amount, FixedSide: SideGive,
		})
		require.NoError(t, err)
		assert.True(t, back.Amount.LessThanOrEqual(d(amount)),
			"round trip of %s returned %s", amount, back.Amount)
	}
}

func TestComputeRejectsCryptoCryptoPair(t *testing.T) {
	_, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From: "BTC", To: "USDT", Amount: d("1"), FixedSide: SideGive,
	})
	assert.ErrorIs(t, err, ErrUnconvertiblePair)
}

func TestComputeRejectsFiatFiatPair(t *testing.T) {
	_, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From: "RUB", To: "RUB", Amount: d("1"), FixedSide: SideGive,
	})
	assert.ErrorIs(t, err, ErrUnconvertiblePair)
}

func TestComputeRejectsUnknownCurrency(t *testing.T) {
	_, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
		From: "RUB", To: "XYZ", Amount: d("10000"), FixedSide: SideGive,
	})
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestComputeRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []string{"0", "-5"} {
		_, err := Compute(testSnapshot(), commission.DefaultSchedule(), Request{
			From: "RUB", To: "USDT", Amount: d(amount), FixedSide: SideGive,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestDecimalPlaces(t *testing.T) {
	assert.Equal(t, int32(0), DecimalPlaces("RUB"))
	assert.Equal(t, int32(8), DecimalPlaces("BTC"))
	assert.Equal(t, int32(2), DecimalPlaces("USDT"))
	assert.Equal(t, int32(4), DecimalPlaces("TON"))
	assert.Equal(t, int32(6), DecimalPlaces("UNLISTED"))
}

func TestFormatStripsTrailingZeros(t *testing.T) {
	assert.Equal(t, "0.001", Format(d("0.00100000"), "BTC"))
	assert.Equal(t, "8640", Format(d("8640.4"), "RUB"))
	assert.Equal(t, "106.67", Format(d("106.666666"), "USDT"))
}
