package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludum/internal/model"
)

func newWalletFixture() (*WalletService, *fakeClock) {
	clock := newFakeClock()
	return NewWalletService(NewMemoryStore(), clock, decimal.NewFromInt(100), 24*time.Hour), clock
}

func TestApplyTopUp_BelowThresholdNoHold(t *testing.T) {
	w, _ := newWalletFixture()

	bal, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(50), "k1")
	require.NoError(t, err)

	assert.True(t, bal.Total.Equal(decimal.NewFromInt(50)))
	assert.True(t, bal.Spendable.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, bal.Holds)
}

func TestApplyTopUp_ExactThresholdNoHold(t *testing.T) {
	w, _ := newWalletFixture()

	// The hold kicks in strictly above the threshold.
	bal, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(100), "k1")
	require.NoError(t, err)

	assert.True(t, bal.Spendable.Equal(decimal.NewFromInt(100)))
	assert.Empty(t, bal.Holds)
}

func TestApplyTopUp_AboveThresholdCreatesHold(t *testing.T) {
	w, clock := newWalletFixture()
	amount := decimal.NewFromInt(250)

	bal, err := w.ApplyTopUp(context.Background(), "acc-1", amount, "k1")
	require.NoError(t, err)

	assert.True(t, bal.Total.Equal(amount))
	assert.True(t, bal.Spendable.IsZero())
	require.Len(t, bal.Holds, 1)

	h := bal.Holds[0]
	assert.True(t, h.Amount.Equal(amount))
	assert.Equal(t, "acc-1", h.AccountID)
	assert.Equal(t, clock.Now().Add(24*time.Hour), h.ReleaseAt)
}

func TestApplyTopUp_HoldReleasesAfterWindow(t *testing.T) {
	w, clock := newWalletFixture()
	amount := decimal.NewFromInt(250)

	_, err := w.ApplyTopUp(context.Background(), "acc-1", amount, "k1")
	require.NoError(t, err)

	clock.Advance(24*time.Hour - time.Second)
	bal, err := w.Balance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.Spendable.IsZero())

	clock.Advance(2 * time.Second)
	bal, err = w.Balance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.Spendable.Equal(amount))
	assert.Empty(t, bal.Holds)
}

func TestApplyTopUp_NonPositive(t *testing.T) {
	w, _ := newWalletFixture()

	_, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.Zero, "k1")
	assert.ErrorIs(t, err, ErrAmountNotPositive)
}

func TestApplyTopUp_SubCentAmount(t *testing.T) {
	w, _ := newWalletFixture()

	// Cents are the persisted unit; finer amounts would be truncated by
	// the store, so they are rejected before it sees them.
	_, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.RequireFromString("10.005"), "k1")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	bal, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.RequireFromString("10.05"), "k2")
	require.NoError(t, err)
	assert.True(t, bal.Total.Equal(decimal.RequireFromString("10.05")))
}

func TestSpend_SubCentAmount(t *testing.T) {
	w, _ := newWalletFixture()

	_, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(50), "k1")
	require.NoError(t, err)

	_, err = w.Spend(context.Background(), model.SpendRequest{
		AccountID: "acc-1",
		Amount:    decimal.RequireFromString("0.015"),
	})
	assert.ErrorIs(t, err, ErrAmountPrecision)
}

func TestApplyTopUp_DuplicateKey(t *testing.T) {
	w, _ := newWalletFixture()

	_, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(50), "k1")
	require.NoError(t, err)

	_, err = w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(50), "k1")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	bal, err := w.Balance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.Total.Equal(decimal.NewFromInt(50)))
}

func TestSpend_HonorsActiveHolds(t *testing.T) {
	w, clock := newWalletFixture()

	_, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(250), "k1")
	require.NoError(t, err)
	_, err = w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(50), "k2")
	require.NoError(t, err)

	// 300 total, 250 locked, 50 spendable.
	_, err = w.Spend(context.Background(), model.SpendRequest{AccountID: "acc-1", Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	res, err := w.Spend(context.Background(), model.SpendRequest{AccountID: "acc-1", Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(decimal.NewFromInt(250)))

	// Once the hold lapses the remainder is spendable again.
	clock.Advance(25 * time.Hour)
	res, err = w.Spend(context.Background(), model.SpendRequest{AccountID: "acc-1", Amount: decimal.NewFromInt(250)})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.IsZero())
}

func TestSpend_Idempotent(t *testing.T) {
	w, _ := newWalletFixture()

	_, err := w.ApplyTopUp(context.Background(), "acc-1", decimal.NewFromInt(80), "k1")
	require.NoError(t, err)

	req := model.SpendRequest{AccountID: "acc-1", Amount: decimal.NewFromInt(30), IdempotencyKey: "spend-1"}
	_, err = w.Spend(context.Background(), req)
	require.NoError(t, err)

	_, err = w.Spend(context.Background(), req)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	bal, err := w.Balance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.Total.Equal(decimal.NewFromInt(50)))
}

func TestSpend_NonPositive(t *testing.T) {
	w, _ := newWalletFixture()

	_, err := w.Spend(context.Background(), model.SpendRequest{AccountID: "acc-1", Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrAmountNotPositive)
}

func TestBalance_EmptyAccount(t *testing.T) {
	w, _ := newWalletFixture()

	bal, err := w.Balance(context.Background(), "acc-unknown")
	require.NoError(t, err)
	assert.True(t, bal.Total.IsZero())
	assert.True(t, bal.Spendable.IsZero())
	assert.Empty(t, bal.Holds)
}
