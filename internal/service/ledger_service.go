package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/models"
)

// InsufficientBalanceError reports a refused operation together with the
// amounts shown to the user.
type InsufficientBalanceError struct {
	Required  int
	Available int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required=%d available=%d", e.Required, e.Available)
}

type balanceStore interface {
	AdjustBalance(ctx context.Context, userID int64, delta int) (int, error)
	Balance(ctx context.Context, userID int64) (int, error)
}

type usageStore interface {
	Append(ctx context.Context, entry models.UsageEntry) error
}

// LedgerService implements the balance policy on top of the account store:
// a fixed cost table, sufficiency checks, and charge-for-delivered deduction.
type LedgerService struct {
	log       *slog.Logger
	balances  balanceStore
	usage     usageStore
	costTable map[models.Feature]int
}

func NewLedgerService(cfg config.Config, log *slog.Logger, balances balanceStore, usage usageStore) *LedgerService {
	return &LedgerService{
		log:      log,
		balances: balances,
		usage:    usage,
		costTable: map[models.Feature]int{
			models.FeatureCreatePhoto: cfg.CreatePhotoCost,
			models.FeatureAnalyzeCTR:  cfg.AnalyzeCTRCost,
			// Improvement reuses the generation pipeline and bills the same.
			models.FeatureCTRImprovement: cfg.CreatePhotoCost,
		},
	}
}

// Cost returns the token cost per unit of output for a feature.
func (s *LedgerService) Cost(feature models.Feature) int {
	return s.costTable[feature]
}

// CheckSufficient compares the current balance against cost*multiplier.
// When the balance falls short it returns an InsufficientBalanceError carrying
// the required and available amounts.
func (s *LedgerService) CheckSufficient(ctx context.Context, userID int64, feature models.Feature, multiplier int) error {
	required := s.costTable[feature] * multiplier
	available, err := s.balances.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("check balance: %w", err)
	}
	if available < required {
		return &InsufficientBalanceError{Required: required, Available: available}
	}
	return nil
}

// Charge deducts cost*delivered from the balance and returns the new value.
// It is called only after the operation has concretely produced `delivered`
// units of output; delivered == 0 leaves the balance untouched.
func (s *LedgerService) Charge(ctx context.Context, userID int64, feature models.Feature, delivered int) (int, error) {
	cost := s.costTable[feature] * delivered
	if cost == 0 {
		balance, err := s.balances.Balance(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("read balance: %w", err)
		}
		return balance, nil
	}
	balance, err := s.balances.AdjustBalance(ctx, userID, -cost)
	if err != nil {
		return 0, fmt.Errorf("charge: %w", err)
	}
	return balance, nil
}

// LogUsage appends an audit entry; failures are logged and swallowed so the
// audit trail never breaks a user-facing flow.
func (s *LedgerService) LogUsage(ctx context.Context, entry models.UsageEntry) {
	if err := s.usage.Append(ctx, entry); err != nil {
		s.log.Error("append usage entry", "err", err, "user_id", entry.UserID, "feature", entry.Feature)
	}
}
