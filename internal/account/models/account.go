package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account types. CREDIT accounts may run a negative balance down to their
// credit limit; the others never go below zero without an override.
const (
	AccountTypeChecking = "CHECKING"
	AccountTypeSavings  = "SAVINGS"
	AccountTypeCredit   = "CREDIT"
)

// Account is the balance-bearing entity. AccountID is the external identifier
// used by the transaction service; the numeric primary key never leaves the
// database.
type Account struct {
	ID          uint             `json:"-" gorm:"primaryKey;autoIncrement"`
	AccountID   string           `json:"id" gorm:"uniqueIndex;not null;size:64"`
	OwnerID     string           `json:"owner_id" gorm:"index;not null;size:64"`
	AccountType string           `json:"account_type" gorm:"not null;size:16"`
	Balance     decimal.Decimal  `json:"balance" gorm:"type:decimal(19,2);not null"`
	CreditLimit *decimal.Decimal `json:"credit_limit,omitempty" gorm:"type:decimal(19,2)"`
	Currency    string           `json:"currency" gorm:"not null;size:3"`
	Active      bool             `json:"active" gorm:"default:true"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `json:"-" gorm:"index"`
}

func (a *Account) TableName() string {
	return "accounts"
}

// AvailableCredit returns the remaining credit headroom for CREDIT accounts,
// nil otherwise.
func (a *Account) AvailableCredit() *decimal.Decimal {
	if a.AccountType != AccountTypeCredit || a.CreditLimit == nil {
		return nil
	}
	available := a.Balance.Add(*a.CreditLimit)
	return &available
}

// CanApply reports whether a signed delta is admissible against the current
// balance. allowNegative overrides the floor; the orchestrator sets it on
// credit and compensation legs so recovery can never be blocked by funds.
func (a *Account) CanApply(delta decimal.Decimal, allowNegative bool) bool {
	if delta.IsPositive() || delta.IsZero() {
		return true
	}
	if allowNegative {
		return true
	}

	next := a.Balance.Add(delta)
	if a.AccountType == AccountTypeCredit && a.CreditLimit != nil {
		return next.GreaterThanOrEqual(a.CreditLimit.Neg())
	}
	return next.GreaterThanOrEqual(decimal.Zero)
}

// Apply mutates the balance by delta. Callers must have checked CanApply and
// must hold the row lock.
func (a *Account) Apply(delta decimal.Decimal) {
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = time.Now().UTC()
}
