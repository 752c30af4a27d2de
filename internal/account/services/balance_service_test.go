package services

import (
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/repositories"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(account *models.Account) error {
	return m.Called(account).Error(0)
}

func (m *MockAccountRepository) GetByAccountID(accountID string) (*models.Account, error) {
	args := m.Called(accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByAccountIDForUpdate(tx *gorm.DB, accountID string) (*models.Account, error) {
	args := m.Called(tx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Update(tx *gorm.DB, account *models.Account) error {
	return m.Called(tx, account).Error(0)
}

func (m *MockAccountRepository) ListByOwner(ownerID string, offset, limit int) ([]models.Account, int64, error) {
	args := m.Called(ownerID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Account), args.Get(1).(int64), args.Error(2)
}

func (m *MockAccountRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if err := m.Called(fn).Error(0); err != nil {
		return err
	}
	return fn(nil)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetByOperationID(tx *gorm.DB, accountID, operationID string) (*models.BalanceOperation, error) {
	args := m.Called(tx, accountID, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BalanceOperation), args.Error(1)
}

func (m *MockLedgerRepository) Create(tx *gorm.DB, op *models.BalanceOperation) error {
	return m.Called(tx, op).Error(0)
}

func (m *MockLedgerRepository) ListByAccount(accountID string, offset, limit int) ([]models.BalanceOperation, int64, error) {
	args := m.Called(accountID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.BalanceOperation), args.Get(1).(int64), args.Error(2)
}

func silentAudit() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func activeAccount(balance int64) *models.Account {
	return &models.Account{
		AccountID:   "ACC-1",
		OwnerID:     "alice",
		AccountType: models.AccountTypeChecking,
		Balance:     decimal.NewFromInt(balance),
		Currency:    "USD",
		Active:      true,
	}
}

func debitRequest(amount int64) *BalanceOpRequest {
	return &BalanceOpRequest{
		OperationID:   "TXN-1:debit",
		TransactionID: "TXN-1",
		Delta:         decimal.NewFromInt(-amount),
		Reason:        "TRANSFER",
	}
}

func newBalanceFixture() (*MockAccountRepository, *MockLedgerRepository, BalanceService) {
	accounts := new(MockAccountRepository)
	ledger := new(MockLedgerRepository)
	accounts.On("Transaction", mock.Anything).Return(nil)
	return accounts, ledger, NewBalanceService(accounts, ledger, silentAudit())
}

func TestApply_DebitWithinFunds(t *testing.T) {
	accounts, ledger, service := newBalanceFixture()
	account := activeAccount(1000)

	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(nil, nil)
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(op *models.BalanceOperation) bool {
		return op.Status == models.OpStatusApplied && op.ResultingBalance.Equal(decimal.NewFromInt(900))
	})).Return(nil)
	accounts.On("Update", mock.Anything, account).Return(nil)

	response, err := service.Apply("ACC-1", debitRequest(100))

	assert.NoError(t, err)
	assert.True(t, response.Applied)
	assert.Equal(t, models.OpStatusApplied, response.Status)
	assert.True(t, response.ResultingBalance.Equal(decimal.NewFromInt(900)))
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(900)))
}

func TestApply_InsufficientFundsRecordsRejection(t *testing.T) {
	accounts, ledger, service := newBalanceFixture()
	account := activeAccount(50)

	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(nil, nil)
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(op *models.BalanceOperation) bool {
		return op.Status == models.OpStatusRejected && op.ResultingBalance.Equal(decimal.NewFromInt(50))
	})).Return(nil)

	response, err := service.Apply("ACC-1", debitRequest(100))

	assert.NoError(t, err)
	assert.False(t, response.Applied)
	assert.Equal(t, models.OpStatusRejected, response.Status)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(50)), "balance untouched")
	accounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestApply_AllowNegativeBypassesFloor(t *testing.T) {
	accounts, ledger, service := newBalanceFixture()
	account := activeAccount(50)

	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(nil, nil)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	accounts.On("Update", mock.Anything, account).Return(nil)

	req := debitRequest(100)
	req.AllowNegative = true
	response, err := service.Apply("ACC-1", req)

	assert.NoError(t, err)
	assert.True(t, response.Applied)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(-50)))
}

func TestApply_ReplayOfAppliedOperation(t *testing.T) {
	accounts, ledger, service := newBalanceFixture()
	account := activeAccount(900)

	recorded := &models.BalanceOperation{
		AccountID:        "ACC-1",
		OperationID:      "TXN-1:debit",
		Status:           models.OpStatusApplied,
		ResultingBalance: decimal.NewFromInt(900),
	}
	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(recorded, nil)

	response, err := service.Apply("ACC-1", debitRequest(100))

	assert.NoError(t, err)
	assert.False(t, response.Applied)
	assert.Equal(t, models.OpStatusReplayed, response.Status)
	assert.Equal(t, models.OpStatusApplied, response.OriginalStatus)
	assert.True(t, response.ResultingBalance.Equal(decimal.NewFromInt(900)))
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(900)), "replay never re-applies")
	ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestApply_ReplayOfRejectedOperation(t *testing.T) {
	accounts, ledger, service := newBalanceFixture()
	account := activeAccount(50)

	recorded := &models.BalanceOperation{
		AccountID:        "ACC-1",
		OperationID:      "TXN-1:debit",
		Status:           models.OpStatusRejected,
		ResultingBalance: decimal.NewFromInt(50),
	}
	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(recorded, nil)

	response, err := service.Apply("ACC-1", debitRequest(100))

	assert.NoError(t, err)
	assert.Equal(t, models.OpStatusReplayed, response.Status)
	assert.Equal(t, models.OpStatusRejected, response.OriginalStatus)
}

func TestApply_DuplicateKeyRaceAnswersWinner(t *testing.T) {
	accounts, ledger, service := newBalanceFixture()
	account := activeAccount(1000)

	winner := &models.BalanceOperation{
		AccountID:        "ACC-1",
		OperationID:      "TXN-1:debit",
		Status:           models.OpStatusApplied,
		ResultingBalance: decimal.NewFromInt(900),
	}
	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(nil, nil).Once()
	ledger.On("Create", mock.Anything, mock.Anything).Return(repositories.ErrOperationExists)
	ledger.On("GetByOperationID", mock.Anything, "ACC-1", "TXN-1:debit").Return(winner, nil)

	response, err := service.Apply("ACC-1", debitRequest(100))

	assert.NoError(t, err)
	assert.Equal(t, models.OpStatusReplayed, response.Status)
	assert.Equal(t, models.OpStatusApplied, response.OriginalStatus)
	accounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestApply_InactiveAccountRejected(t *testing.T) {
	accounts, _, service := newBalanceFixture()
	account := activeAccount(1000)
	account.Active = false

	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-1").Return(account, nil)

	_, err := service.Apply("ACC-1", debitRequest(100))

	assert.ErrorIs(t, err, apperrors.ErrAccountInactive)
}

func TestApply_UnknownAccount(t *testing.T) {
	accounts, _, service := newBalanceFixture()

	accounts.On("GetByAccountIDForUpdate", mock.Anything, "ACC-404").Return(nil, apperrors.ErrAccountNotFound)

	_, err := service.Apply("ACC-404", debitRequest(100))

	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}
