package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/repositories"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type CreateAccountRequest struct {
	OwnerID     string           `json:"owner_id"`
	AccountType string           `json:"account_type" binding:"required"`
	Currency    string           `json:"currency" binding:"required"`
	CreditLimit *decimal.Decimal `json:"credit_limit"`
}

type AccountService interface {
	Create(req *CreateAccountRequest) (*models.Account, error)
	Get(accountID string) (*models.Account, error)
	ListByOwner(ownerID string, offset, limit int) ([]models.Account, int64, error)
	// SetBalance overwrites the balance directly, bypassing the ledger. Admin
	// only; intended for provisioning and corrections that operators own.
	SetBalance(accountID string, balance decimal.Decimal, adminSubject string) (*models.Account, error)
	SetActive(accountID string, active bool) (*models.Account, error)
}

type accountService struct {
	accounts repositories.AccountRepository
	audit    *logrus.Logger
}

func NewAccountService(accounts repositories.AccountRepository, audit *logrus.Logger) AccountService {
	return &accountService{
		accounts: accounts,
		audit:    audit,
	}
}

func (s *accountService) Create(req *CreateAccountRequest) (*models.Account, error) {
	switch req.AccountType {
	case models.AccountTypeChecking, models.AccountTypeSavings, models.AccountTypeCredit:
	default:
		return nil, apperrors.New("INVALID_ACCOUNT_TYPE", 400, fmt.Sprintf("unknown account type %q", req.AccountType))
	}
	if len(req.Currency) != 3 {
		return nil, apperrors.ErrCurrencyMismatch.WithDetails("currency must be a 3-letter code")
	}
	if req.AccountType == models.AccountTypeCredit && req.CreditLimit == nil {
		return nil, apperrors.New("MISSING_CREDIT_LIMIT", 400, "credit accounts require a credit limit")
	}

	account := &models.Account{
		AccountID:   "ACC-" + uuid.NewString(),
		OwnerID:     req.OwnerID,
		AccountType: req.AccountType,
		Balance:     decimal.Zero,
		CreditLimit: req.CreditLimit,
		Currency:    req.Currency,
		Active:      true,
	}

	if err := s.accounts.Create(account); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"account_id":   account.AccountID,
		"account_type": account.AccountType,
		"owner_id":     account.OwnerID,
	}).Info("Account created")

	return account, nil
}

func (s *accountService) Get(accountID string) (*models.Account, error) {
	return s.accounts.GetByAccountID(accountID)
}

func (s *accountService) ListByOwner(ownerID string, offset, limit int) ([]models.Account, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.accounts.ListByOwner(ownerID, offset, limit)
}

func (s *accountService) SetBalance(accountID string, balance decimal.Decimal, adminSubject string) (*models.Account, error) {
	account, err := s.accounts.GetByAccountID(accountID)
	if err != nil {
		return nil, err
	}

	previous := account.Balance
	account.Balance = balance

	if err := s.accounts.Update(nil, account); err != nil {
		return nil, err
	}

	// Direct balance writes skip the ledger, so the audit trail is the only
	// record of them.
	s.audit.WithFields(logrus.Fields{
		"account_id":       accountID,
		"previous_balance": previous.String(),
		"new_balance":      balance.String(),
		"admin":            adminSubject,
	}).Warn("Account balance set directly")

	return account, nil
}

func (s *accountService) SetActive(accountID string, active bool) (*models.Account, error) {
	account, err := s.accounts.GetByAccountID(accountID)
	if err != nil {
		return nil, err
	}

	account.Active = active
	if err := s.accounts.Update(nil, account); err != nil {
		return nil, err
	}

	return account, nil
}
