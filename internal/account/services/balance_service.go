package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/repositories"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// BalanceOpRequest is one idempotent signed delta against an account.
type BalanceOpRequest struct {
	OperationID   string          `json:"operation_id" binding:"required"`
	TransactionID string          `json:"transaction_id"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason"`
	AllowNegative bool            `json:"allow_negative"`
}

// BalanceOpResponse reports the outcome. Replays answer with applied=false,
// status REPLAYED, and the first submission's outcome in original_status.
type BalanceOpResponse struct {
	Applied          bool            `json:"applied"`
	Status           string          `json:"status"`
	OriginalStatus   string          `json:"original_status,omitempty"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
}

type BalanceService interface {
	Apply(accountID string, req *BalanceOpRequest) (*BalanceOpResponse, error)
	History(accountID string, offset, limit int) ([]models.BalanceOperation, int64, error)
}

type balanceService struct {
	accounts repositories.AccountRepository
	ledger   repositories.LedgerRepository
	audit    *logrus.Logger
}

func NewBalanceService(accounts repositories.AccountRepository, ledger repositories.LedgerRepository, audit *logrus.Logger) BalanceService {
	return &balanceService{
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
	}
}

// Apply runs one balance operation under a row lock. The (account, operation)
// ledger row decides idempotency: a known operation id is never re-evaluated,
// its recorded outcome is replayed verbatim. Both APPLIED and REJECTED
// attempts are recorded.
func (s *balanceService) Apply(accountID string, req *BalanceOpRequest) (*BalanceOpResponse, error) {
	var response *BalanceOpResponse

	err := s.accounts.Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.GetByAccountIDForUpdate(tx, accountID)
		if err != nil {
			return err
		}
		if !account.Active {
			return apperrors.ErrAccountInactive
		}

		existing, err := s.ledger.GetByOperationID(tx, accountID, req.OperationID)
		if err != nil {
			return err
		}
		if existing != nil {
			response = replayResponse(existing)
			return nil
		}

		op := &models.BalanceOperation{
			AccountID:     accountID,
			OperationID:   req.OperationID,
			TransactionID: req.TransactionID,
			Delta:         req.Delta,
			Reason:        req.Reason,
			AllowNegative: req.AllowNegative,
		}

		if !account.CanApply(req.Delta, req.AllowNegative) {
			op.Status = models.OpStatusRejected
			op.ResultingBalance = account.Balance
			if err := s.createOp(tx, accountID, req, op, &response); err != nil || response != nil {
				return err
			}
			response = &BalanceOpResponse{
				Applied:          false,
				Status:           models.OpStatusRejected,
				ResultingBalance: account.Balance,
			}
			return nil
		}

		account.Apply(req.Delta)
		op.Status = models.OpStatusApplied
		op.ResultingBalance = account.Balance

		if err := s.createOp(tx, accountID, req, op, &response); err != nil || response != nil {
			return err
		}
		if err := s.accounts.Update(tx, account); err != nil {
			return err
		}

		response = &BalanceOpResponse{
			Applied:          true,
			Status:           models.OpStatusApplied,
			ResultingBalance: account.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.WithFields(logrus.Fields{
		"account_id":     accountID,
		"operation_id":   req.OperationID,
		"transaction_id": req.TransactionID,
		"delta":          req.Delta.String(),
		"status":         response.Status,
	}).Info("Balance operation processed")

	return response, nil
}

// createOp inserts the ledger row. If a concurrent request won the unique
// index race, the winner's row is re-read and replayed instead; the ledger
// row, not the loser's evaluation, is the truth.
func (s *balanceService) createOp(tx *gorm.DB, accountID string, req *BalanceOpRequest, op *models.BalanceOperation, response **BalanceOpResponse) error {
	err := s.ledger.Create(tx, op)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrOperationExists) {
		return err
	}

	winner, readErr := s.ledger.GetByOperationID(tx, accountID, req.OperationID)
	if readErr != nil {
		return readErr
	}
	if winner == nil {
		return fmt.Errorf("balance operation %s vanished after duplicate key", req.OperationID)
	}
	*response = replayResponse(winner)
	return nil
}

func replayResponse(op *models.BalanceOperation) *BalanceOpResponse {
	return &BalanceOpResponse{
		Applied:          false,
		Status:           models.OpStatusReplayed,
		OriginalStatus:   op.Status,
		ResultingBalance: op.ResultingBalance,
	}
}

func (s *balanceService) History(accountID string, offset, limit int) ([]models.BalanceOperation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListByAccount(accountID, offset, limit)
}
