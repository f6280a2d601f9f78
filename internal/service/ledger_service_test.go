package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/models"
)

type memBalanceStore struct {
	balances map[int64]int
	adjusts  int
}

func (m *memBalanceStore) AdjustBalance(_ context.Context, userID int64, delta int) (int, error) {
	m.adjusts++
	m.balances[userID] += delta
	return m.balances[userID], nil
}

func (m *memBalanceStore) Balance(_ context.Context, userID int64) (int, error) {
	return m.balances[userID], nil
}

type memUsageStore struct {
	entries []models.UsageEntry
}

func (m *memUsageStore) Append(_ context.Context, entry models.UsageEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		CreatePhotoCost: 25,
		AnalyzeCTRCost:  5,
		DefaultBalance:  50,
		MaxImages:       5,
	}
}

func newTestLedger(balance int) (*LedgerService, *memBalanceStore, *memUsageStore) {
	balances := &memBalanceStore{balances: map[int64]int{1: balance}}
	usage := &memUsageStore{}
	ledger := NewLedgerService(testConfig(), discardLogger(), balances, usage)
	return ledger, balances, usage
}

func TestChargeDeductsCostTimesDelivered(t *testing.T) {
	ledger, _, _ := newTestLedger(100)

	balance, err := ledger.Charge(context.Background(), 1, models.FeatureCreatePhoto, 3)
	require.NoError(t, err)
	assert.Equal(t, 25, balance)
}

func TestChargeZeroDeliveredLeavesBalanceUntouched(t *testing.T) {
	ledger, balances, _ := newTestLedger(50)

	balance, err := ledger.Charge(context.Background(), 1, models.FeatureCreatePhoto, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, balance)
	assert.Zero(t, balances.adjusts, "a zero charge must not issue a balance update")
}

func TestCheckSufficient(t *testing.T) {
	ledger, _, _ := newTestLedger(50)
	ctx := context.Background()

	require.NoError(t, ledger.CheckSufficient(ctx, 1, models.FeatureCreatePhoto, 2))

	err := ledger.CheckSufficient(ctx, 1, models.FeatureCreatePhoto, 4)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 100, insufficient.Required)
	assert.Equal(t, 50, insufficient.Available)
}

func TestNewUserScenario(t *testing.T) {
	// New account starts at 50; one successful single-image generation costs
	// 25; a four-image request is then refused citing 100/25 and the balance
	// stays put.
	ledger, _, _ := newTestLedger(50)
	ctx := context.Background()

	require.NoError(t, ledger.CheckSufficient(ctx, 1, models.FeatureCreatePhoto, 1))
	balance, err := ledger.Charge(ctx, 1, models.FeatureCreatePhoto, 1)
	require.NoError(t, err)
	assert.Equal(t, 25, balance)

	err = ledger.CheckSufficient(ctx, 1, models.FeatureCreatePhoto, 4)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 100, insufficient.Required)
	assert.Equal(t, 25, insufficient.Available)

	err = ledger.CheckSufficient(ctx, 1, models.FeatureCreatePhoto, 1)
	require.NoError(t, err, "balance must remain 25 after the refusal")
}

func TestImprovementBillsAsCreatePhoto(t *testing.T) {
	ledger, _, _ := newTestLedger(50)
	assert.Equal(t, ledger.Cost(models.FeatureCreatePhoto), ledger.Cost(models.FeatureCTRImprovement))
}

func TestLogUsageSwallowsStoreErrors(t *testing.T) {
	balances := &memBalanceStore{balances: map[int64]int{}}
	ledger := NewLedgerService(testConfig(), discardLogger(), balances, failingUsageStore{})

	// Must not panic or propagate.
	ledger.LogUsage(context.Background(), models.UsageEntry{UserID: 1})
}

type failingUsageStore struct{}

func (failingUsageStore) Append(context.Context, models.UsageEntry) error {
	return errors.New("usage store down")
}
