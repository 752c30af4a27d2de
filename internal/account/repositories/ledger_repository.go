package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
)

// ErrOperationExists signals a concurrent insert of the same operation id.
// The balance service re-reads the winner's row and answers REPLAYED.
var ErrOperationExists = errors.New("balance operation already recorded")

type LedgerRepository interface {
	// GetByOperationID returns nil, nil when the operation was never seen.
	GetByOperationID(tx *gorm.DB, accountID, operationID string) (*models.BalanceOperation, error)
	Create(tx *gorm.DB, op *models.BalanceOperation) error
	ListByAccount(accountID string, offset, limit int) ([]models.BalanceOperation, int64, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) GetByOperationID(tx *gorm.DB, accountID, operationID string) (*models.BalanceOperation, error) {
	db := tx
	if db == nil {
		db = r.db
	}

	var op models.BalanceOperation
	err := db.Where("account_id = ? AND operation_id = ?", accountID, operationID).First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up balance operation: %w", err)
	}
	return &op, nil
}

func (r *ledgerRepository) Create(tx *gorm.DB, op *models.BalanceOperation) error {
	db := tx
	if db == nil {
		db = r.db
	}

	if err := db.Create(op).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrOperationExists
		}
		return fmt.Errorf("failed to record balance operation: %w", err)
	}
	return nil
}

func (r *ledgerRepository) ListByAccount(accountID string, offset, limit int) ([]models.BalanceOperation, int64, error) {
	var ops []models.BalanceOperation
	var total int64

	query := r.db.Model(&models.BalanceOperation{}).Where("account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count balance operations: %w", err)
	}

	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&ops).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list balance operations: %w", err)
	}

	return ops, total, nil
}
