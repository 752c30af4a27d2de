package limits

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type MockLimitSource struct {
	mock.Mock
}

func (m *MockLimitSource) FindActive(ctx context.Context, accountType, txType string) (*models.TransactionLimit, error) {
	args := m.Called(ctx, accountType, txType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionLimit), args.Error(1)
}

type MockUsageSource struct {
	mock.Mock
}

func (m *MockUsageSource) AggregateUsage(ctx context.Context, accountID, txType string, window models.UsageWindow) (decimal.Decimal, int64, error) {
	args := m.Called(ctx, accountID, txType, window)
	return args.Get(0).(decimal.Decimal), args.Get(1).(int64), args.Error(2)
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func count(v int64) *int64 {
	return &v
}

func TestCheck_NoLimitConfiguredPasses(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	limits.On("FindActive", mock.Anything, "CHECKING", "TRANSFER").Return(nil, nil)

	err := NewEnforcer(limits, usage).Check(context.Background(), "ACC-1", "CHECKING", "TRANSFER", decimal.NewFromInt(100))

	assert.NoError(t, err)
	usage.AssertNotCalled(t, "AggregateUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheck_PerTransactionLimit(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	limits.On("FindActive", mock.Anything, "CHECKING", "TRANSFER").
		Return(&models.TransactionLimit{PerTxLimit: dec(500)}, nil)

	enforcer := NewEnforcer(limits, usage)

	assert.NoError(t, enforcer.Check(context.Background(), "ACC-1", "CHECKING", "TRANSFER", decimal.NewFromInt(500)))
	assert.ErrorIs(t,
		enforcer.Check(context.Background(), "ACC-1", "CHECKING", "TRANSFER", decimal.RequireFromString("500.01")),
		apperrors.ErrLimitExceeded)
}

func TestCheck_DailySumIncludesCandidateAmount(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	limits.On("FindActive", mock.Anything, "CHECKING", "TRANSFER").
		Return(&models.TransactionLimit{DailyLimit: dec(1000)}, nil)
	usage.On("AggregateUsage", mock.Anything, "ACC-1", "TRANSFER", models.WindowDay).
		Return(decimal.NewFromInt(950), int64(4), nil)

	err := NewEnforcer(limits, usage).Check(context.Background(), "ACC-1", "CHECKING", "TRANSFER", decimal.NewFromInt(100))

	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)
}

func TestCheck_DailyCount(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	limits.On("FindActive", mock.Anything, "CHECKING", "WITHDRAWAL").
		Return(&models.TransactionLimit{DailyCount: count(3)}, nil)
	usage.On("AggregateUsage", mock.Anything, "ACC-1", "WITHDRAWAL", models.WindowDay).
		Return(decimal.NewFromInt(30), int64(3), nil)

	err := NewEnforcer(limits, usage).Check(context.Background(), "ACC-1", "CHECKING", "WITHDRAWAL", decimal.NewFromInt(10))

	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)
}

func TestCheck_MonthlyLimit(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	limits.On("FindActive", mock.Anything, "SAVINGS", "TRANSFER").
		Return(&models.TransactionLimit{MonthlyLimit: dec(5000), MonthlyCount: count(100)}, nil)
	usage.On("AggregateUsage", mock.Anything, "ACC-1", "TRANSFER", models.WindowMonth).
		Return(decimal.NewFromInt(4000), int64(12), nil)

	enforcer := NewEnforcer(limits, usage)

	assert.NoError(t, enforcer.Check(context.Background(), "ACC-1", "SAVINGS", "TRANSFER", decimal.NewFromInt(1000)))

	usage.ExpectedCalls = nil
	usage.On("AggregateUsage", mock.Anything, "ACC-1", "TRANSFER", models.WindowMonth).
		Return(decimal.NewFromInt(4500), int64(12), nil)

	assert.ErrorIs(t,
		enforcer.Check(context.Background(), "ACC-1", "SAVINGS", "TRANSFER", decimal.NewFromInt(1000)),
		apperrors.ErrLimitExceeded)
}

func TestCheck_NilColumnsDisableChecks(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	// Only per-transaction is configured: no usage aggregation should run.
	limits.On("FindActive", mock.Anything, "CHECKING", "TRANSFER").
		Return(&models.TransactionLimit{PerTxLimit: dec(10000)}, nil)

	err := NewEnforcer(limits, usage).Check(context.Background(), "ACC-1", "CHECKING", "TRANSFER", decimal.NewFromInt(100))

	assert.NoError(t, err)
	usage.AssertNotCalled(t, "AggregateUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheck_LimitSourceErrorPropagates(t *testing.T) {
	limits := new(MockLimitSource)
	usage := new(MockUsageSource)
	limits.On("FindActive", mock.Anything, "CHECKING", "TRANSFER").
		Return(nil, errors.New("store offline"))

	err := NewEnforcer(limits, usage).Check(context.Background(), "ACC-1", "CHECKING", "TRANSFER", decimal.NewFromInt(100))

	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrLimitExceeded)
}
