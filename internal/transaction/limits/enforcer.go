package limits

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// LimitSource yields the configured limit for a pair, or nil when none.
type LimitSource interface {
	FindActive(ctx context.Context, accountType, txType string) (*models.TransactionLimit, error)
}

// UsageSource aggregates completed usage for an account inside a window.
type UsageSource interface {
	AggregateUsage(ctx context.Context, accountID, txType string, window models.UsageWindow) (decimal.Decimal, int64, error)
}

// Enforcer rejects candidate transactions that would breach the configured
// per-transaction, windowed-sum, or windowed-count limits. The check runs
// before the debit leg; failed and compensated transactions never count
// against the aggregates, so there is nothing to re-check after compensation.
type Enforcer struct {
	limits LimitSource
	usage  UsageSource
}

func NewEnforcer(limits LimitSource, usage UsageSource) *Enforcer {
	return &Enforcer{
		limits: limits,
		usage:  usage,
	}
}

// Check returns LIMIT_EXCEEDED when any configured bound would be breached.
// A nil limit column disables that particular check.
func (e *Enforcer) Check(ctx context.Context, accountID, accountType, txType string, amount decimal.Decimal) error {
	limit, err := e.limits.FindActive(ctx, accountType, txType)
	if err != nil {
		return fmt.Errorf("failed to load limit configuration: %w", err)
	}
	if limit == nil {
		return nil
	}

	if limit.PerTxLimit != nil && amount.GreaterThan(*limit.PerTxLimit) {
		return apperrors.ErrLimitExceeded.WithDetails(
			fmt.Sprintf("amount %s exceeds per-transaction limit %s", amount, limit.PerTxLimit))
	}

	if limit.DailyLimit != nil || limit.DailyCount != nil {
		sum, count, err := e.usage.AggregateUsage(ctx, accountID, txType, models.WindowDay)
		if err != nil {
			return fmt.Errorf("failed to aggregate daily usage: %w", err)
		}
		if limit.DailyLimit != nil && sum.Add(amount).GreaterThan(*limit.DailyLimit) {
			return apperrors.ErrLimitExceeded.WithDetails(
				fmt.Sprintf("daily limit %s would be exceeded", limit.DailyLimit))
		}
		if limit.DailyCount != nil && count+1 > *limit.DailyCount {
			return apperrors.ErrLimitExceeded.WithDetails(
				fmt.Sprintf("daily transaction count %d would be exceeded", *limit.DailyCount))
		}
	}

	if limit.MonthlyLimit != nil || limit.MonthlyCount != nil {
		sum, count, err := e.usage.AggregateUsage(ctx, accountID, txType, models.WindowMonth)
		if err != nil {
			return fmt.Errorf("failed to aggregate monthly usage: %w", err)
		}
		if limit.MonthlyLimit != nil && sum.Add(amount).GreaterThan(*limit.MonthlyLimit) {
			return apperrors.ErrLimitExceeded.WithDetails(
				fmt.Sprintf("monthly limit %s would be exceeded", limit.MonthlyLimit))
		}
		if limit.MonthlyCount != nil && count+1 > *limit.MonthlyCount {
			return apperrors.ErrLimitExceeded.WithDetails(
				fmt.Sprintf("monthly transaction count %d would be exceeded", *limit.MonthlyCount))
		}
	}

	return nil
}
