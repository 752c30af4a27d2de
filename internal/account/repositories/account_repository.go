package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type AccountRepository interface {
	Create(account *models.Account) error
	GetByAccountID(accountID string) (*models.Account, error)
	// GetByAccountIDForUpdate must run inside a transaction; it takes a row
	// lock so concurrent balance operations serialize.
	GetByAccountIDForUpdate(tx *gorm.DB, accountID string) (*models.Account, error)
	Update(tx *gorm.DB, account *models.Account) error
	ListByOwner(ownerID string, offset, limit int) ([]models.Account, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(account *models.Account) error {
	if err := r.db.Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.New("ACCOUNT_EXISTS", 409, "Account already exists")
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByAccountID(accountID string) (*models.Account, error) {
	var account models.Account
	if err := r.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByAccountIDForUpdate(tx *gorm.DB, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) Update(tx *gorm.DB, account *models.Account) error {
	db := tx
	if db == nil {
		db = r.db
	}
	if err := db.Save(account).Error; err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (r *accountRepository) ListByOwner(ownerID string, offset, limit int) ([]models.Account, int64, error) {
	var accounts []models.Account
	var total int64

	query := r.db.Model(&models.Account{}).Where("owner_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&accounts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, total, nil
}

func (r *accountRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}
