package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger outcome statuses. REPLAYED is never stored: it is synthesized when a
// known operation id is submitted again.
const (
	OpStatusApplied  = "APPLIED"
	OpStatusRejected = "REJECTED"
	OpStatusReplayed = "REPLAYED"
)

// BalanceOperation is one ledger row: a signed delta attempted against an
// account. The unique (account_id, operation_id) pair is what makes balance
// mutation idempotent; rejected attempts are recorded too, so a replayed
// rejection answers REJECTED and not a fresh evaluation.
type BalanceOperation struct {
	ID               uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	AccountID        string          `json:"account_id" gorm:"not null;size:64;uniqueIndex:idx_account_operation,priority:1"`
	OperationID      string          `json:"operation_id" gorm:"not null;size:128;uniqueIndex:idx_account_operation,priority:2"`
	TransactionID    string          `json:"transaction_id" gorm:"index;size:64"`
	Delta            decimal.Decimal `json:"delta" gorm:"type:decimal(19,2);not null"`
	Status           string          `json:"status" gorm:"not null;size:16"`
	Reason           string          `json:"reason" gorm:"size:255"`
	AllowNegative    bool            `json:"allow_negative"`
	ResultingBalance decimal.Decimal `json:"resulting_balance" gorm:"type:decimal(19,2);not null"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (BalanceOperation) TableName() string {
	return "balance_operations"
}
