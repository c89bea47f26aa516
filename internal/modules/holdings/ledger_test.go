package holdings

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE holdings (
			portfolio_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			shares TEXT NOT NULL,
			avg_cost TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, ticker)
		)
	`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLedger(t *testing.T) *Ledger {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	return NewLedger("pf-1", repo, zerolog.Nop())
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFirstBuyCreatesPositionAtPrice(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("100")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("10")))
	assert.True(t, h.AvgCost.Equal(d("100")))
}

func TestBuyWeightedAverageCost(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("100")))
	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("200")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("20")))
	assert.True(t, h.AvgCost.Equal(d("150")), "avg cost: %s", h.AvgCost)
}

func TestBuyWeightedAverageExactFractions(t *testing.T) {
	ledger := newTestLedger(t)

	// 3 @ 10.10 then 7 @ 20.30 -> (30.30 + 142.10) / 10 = 17.24 exactly
	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("3"), d("10.10")))
	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("7"), d("20.30")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.AvgCost.Equal(d("17.24")), "avg cost: %s", h.AvgCost)
}

func TestPartialSellKeepsAvgCost(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("150")))
	require.NoError(t, ledger.ReduceOnSell("AAPL", d("4")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("6")))
	assert.True(t, h.AvgCost.Equal(d("150")))
}

func TestFullSellDeletesRow(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("150")))
	require.NoError(t, ledger.ReduceOnSell("AAPL", d("10")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	assert.Nil(t, h, "fully sold position must be deleted, not zeroed")
}

func TestDustRemainderDeletesRow(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10.00005"), d("150")))
	require.NoError(t, ledger.ReduceOnSell("AAPL", d("10")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	assert.Nil(t, h, "sub-threshold dust must close the position")
}

func TestRemainderJustAboveThresholdSurvives(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10.001"), d("150")))
	require.NoError(t, ledger.ReduceOnSell("AAPL", d("10")))

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("0.001")))
}

func TestSellWithoutPosition(t *testing.T) {
	ledger := newTestLedger(t)
	err := ledger.ReduceOnSell("AAPL", d("1"))
	assert.Error(t, err)
}

func TestOversell(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("5"), d("100")))

	err := ledger.ReduceOnSell("AAPL", d("6"))
	assert.Error(t, err)

	h, err := ledger.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("5")), "failed sell must not touch the position")
}

func TestTickerNormalization(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy(" aapl ", d("5"), d("100")))
	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("5"), d("100")))

	all, err := ledger.All()
	require.NoError(t, err)
	require.Len(t, all, 1, "case variants must hit the same row")
	assert.True(t, all[0].Shares.Equal(d("10")))
}

func TestValuate(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("100")))
	require.NoError(t, ledger.UpsertOnBuy("MSFT", d("5"), d("200")))

	total, err := ledger.Valuate(map[string]decimal.Decimal{
		"AAPL": d("110"),
		"MSFT": d("250"),
	})
	require.NoError(t, err)
	assert.True(t, total.Equal(d("2350")), "got %s", total)
}

func TestValuateFallsBackToCostBasis(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.UpsertOnBuy("AAPL", d("10"), d("100")))
	require.NoError(t, ledger.UpsertOnBuy("GONE", d("2"), d("50")))

	// GONE missing from the map -> valued at avg cost
	total, err := ledger.Valuate(map[string]decimal.Decimal{"AAPL": d("110")})
	require.NoError(t, err)
	assert.True(t, total.Equal(d("1200")), "got %s", total)
}

func TestValuateEmptyLedger(t *testing.T) {
	ledger := newTestLedger(t)
	total, err := ledger.Valuate(nil)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}
