package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account types recognized by the limit configuration.
const (
	AccountTypeChecking = "CHECKING"
	AccountTypeSavings  = "SAVINGS"
	AccountTypeCredit   = "CREDIT"
)

// Usage windows for limit aggregation.
type UsageWindow string

const (
	WindowDay   UsageWindow = "DAY"
	WindowMonth UsageWindow = "MONTH"
)

// Start returns the beginning of the window containing now.
func (w UsageWindow) Start(now time.Time) time.Time {
	now = now.UTC()
	switch w {
	case WindowMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// TransactionLimit is administrative configuration keyed by
// (account_type, transaction_type). A nil column disables that check.
type TransactionLimit struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AccountType  string             `bson:"account_type" json:"account_type"`
	Type         string             `bson:"type" json:"type"`
	PerTxLimit   *decimal.Decimal   `bson:"per_tx_limit,omitempty" json:"per_tx_limit,omitempty"`
	DailyLimit   *decimal.Decimal   `bson:"daily_limit,omitempty" json:"daily_limit,omitempty"`
	MonthlyLimit *decimal.Decimal   `bson:"monthly_limit,omitempty" json:"monthly_limit,omitempty"`
	DailyCount   *int64             `bson:"daily_count,omitempty" json:"daily_count,omitempty"`
	MonthlyCount *int64             `bson:"monthly_count,omitempty" json:"monthly_count,omitempty"`
	Active       bool               `bson:"active" json:"active"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}
