package position

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestPosition() *Position {
	return New("AAPL", USD, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestApplyBuy(t *testing.T) {
	p := newTestPosition()
	err := p.ApplyBuy(d("10"), d("150"), d("1.50"))
	require.NoError(t, err)

	assert.True(t, p.SharesOwned.Equal(d("10")))
	assert.True(t, p.TotalInvestedAmount.Equal(d("1501.50")))
	assert.True(t, p.AverageCostPerShare.Equal(d("150.15")))
	assert.True(t, p.TotalTransactionFees.Equal(d("1.50")))
	assert.True(t, p.IsActive)
}

func TestApplyBuy_InvalidInput(t *testing.T) {
	p := newTestPosition()
	err := p.ApplyBuy(d("0"), d("150"), d("0"))
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, kind)
}

func TestApplySell_Oversell(t *testing.T) {
	p := newTestPosition()
	require.NoError(t, p.ApplyBuy(d("5"), d("100"), d("0")))

	err := p.ApplySell(d("10"), d("120"), d("0"))
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	assert.Equal(t, KindOversell, kind)
}

func TestApplySell_FeesDoNotReduceInvested(t *testing.T) {
	p := newTestPosition()
	require.NoError(t, p.ApplyBuy(d("10"), d("150"), d("0")))

	err := p.ApplySell(d("4"), d("200"), d("2"))
	require.NoError(t, err)

	// proportional cost removed = 4 * 150 = 600; invested was 1500 -> 900
	assert.True(t, p.TotalInvestedAmount.Equal(d("900")))
	assert.True(t, p.TotalTransactionFees.Equal(d("2")))
	assert.True(t, p.SharesOwned.Equal(d("6")))
}

func TestApplySell_ZeroesOutOnFullSale(t *testing.T) {
	p := newTestPosition()
	require.NoError(t, p.ApplyBuy(d("10"), d("150"), d("0")))
	require.NoError(t, p.ApplySell(d("10"), d("200"), d("1")))

	assert.True(t, p.SharesOwned.IsZero())
	assert.True(t, p.TotalInvestedAmount.IsZero())
	assert.True(t, p.AverageCostPerShare.IsZero())
	assert.False(t, p.IsActive)
	require.NoError(t, p.CheckInvariants())
}

func TestApplyBuy_ThenReverseBuy_RoundTrips(t *testing.T) {
	p := newTestPosition()
	qty, price, fees := d("10"), d("150"), d("1.50")

	require.NoError(t, p.ApplyBuy(qty, price, fees))
	require.NoError(t, p.ReverseBuy(qty, price, fees))

	assert.True(t, p.SharesOwned.IsZero())
	assert.True(t, p.TotalInvestedAmount.IsZero())
	assert.True(t, p.AverageCostPerShare.IsZero())
	assert.True(t, p.TotalTransactionFees.IsZero())
	assert.False(t, p.IsActive)
}

func TestApplySell_ThenReverseSell_RoundTrips_WhenAvgCostUnchanged(t *testing.T) {
	p := newTestPosition()
	require.NoError(t, p.ApplyBuy(d("10"), d("150"), d("0")))

	sharesBefore := p.SharesOwned
	investedBefore := p.TotalInvestedAmount
	avgBefore := p.AverageCostPerShare
	feesBefore := p.TotalTransactionFees

	require.NoError(t, p.ApplySell(d("4"), d("200"), d("2")))
	require.NoError(t, p.ReverseSell(d("4"), d("200"), d("2")))

	assert.True(t, p.SharesOwned.Equal(sharesBefore))
	assert.True(t, p.TotalInvestedAmount.Equal(investedBefore))
	assert.True(t, p.AverageCostPerShare.Equal(avgBefore))
	assert.True(t, p.TotalTransactionFees.Equal(feesBefore))
}

func TestApplyTransaction_ReverseTransaction_RemovesFromSet(t *testing.T) {
	p := newTestPosition()
	txID := uuid.New()
	now := time.Now()

	require.NoError(t, p.ApplyTransaction(txID, Buy, d("10"), d("150"), d("1"), now))
	assert.True(t, p.HasTransaction(txID))

	require.NoError(t, p.ReverseTransaction(txID, Buy, d("10"), d("150"), d("1"), now))
	assert.False(t, p.HasTransaction(txID))
}

func TestShouldIgnoreEvent(t *testing.T) {
	p := newTestPosition()
	assert.False(t, p.ShouldIgnoreEvent(time.Now()))

	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	p.LastEventAppliedAt = &t1

	assert.True(t, p.ShouldIgnoreEvent(t1))
	assert.True(t, p.ShouldIgnoreEvent(t1.Add(-time.Second)))
	assert.False(t, p.ShouldIgnoreEvent(t1.Add(time.Second)))
}

func TestParseTransactionType_CaseInsensitive(t *testing.T) {
	tt, err := ParseTransactionType("buy")
	require.NoError(t, err)
	assert.Equal(t, Buy, tt)

	tt, err = ParseTransactionType("SELL")
	require.NoError(t, err)
	assert.Equal(t, Sell, tt)

	_, err = ParseTransactionType("HOLD")
	require.Error(t, err)
}

func TestInvariant_AverageCostConsistentWithInvested(t *testing.T) {
	p := newTestPosition()
	require.NoError(t, p.ApplyBuy(d("7"), d("99.99"), d("3.33")))

	expected := p.AverageCostPerShare.Mul(p.SharesOwned)
	diff := expected.Sub(p.TotalInvestedAmount).Abs()
	assert.True(t, diff.LessThan(d("0.001")), "avg*shares should approximate invested, diff=%s", diff)
}
