package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// Transaction types
const (
	TypeTransfer   = "TRANSFER"
	TypeDeposit    = "DEPOSIT"
	TypeWithdrawal = "WITHDRAWAL"
	TypeFee        = "FEE"
	TypeInterest   = "INTEREST"
	TypeReversal   = "REVERSAL"
	TypeRefund     = "REFUND"
)

// Externally visible statuses
const (
	StatusPending              = "PENDING"
	StatusProcessing           = "PROCESSING"
	StatusCompleted            = "COMPLETED"
	StatusFailed               = "FAILED"
	StatusFailedManualAction   = "FAILED_REQUIRES_MANUAL_ACTION"
	StatusReversed             = "REVERSED"
	StatusCancelled            = "CANCELLED"
)

// Internal saga positions, orthogonal to status
const (
	StateInitiated            = "INITIATED"
	StateDebitApplied         = "DEBIT_APPLIED"
	StateCreditApplied        = "CREDIT_APPLIED"
	StateCompleted            = "COMPLETED"
	StateCompensated          = "COMPENSATED"
	StateManualActionRequired = "MANUAL_ACTION_REQUIRED"
)

// Failure reasons attached to terminal FAILED rows
const (
	ReasonInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ReasonLimitExceeded       = "LIMIT_EXCEEDED"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonCreditFailed        = "CREDIT_FAILED"
)

// Transaction is the atomic unit of money movement. status is what external
// consumers see; processing_state tracks where the saga got to.
type Transaction struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TransactionID         string             `bson:"transaction_id" json:"transaction_id"`
	Type                  string             `bson:"type" json:"type"`
	Status                string             `bson:"status" json:"status"`
	ProcessingState       string             `bson:"processing_state" json:"processing_state"`
	FromAccount           string             `bson:"from_account,omitempty" json:"from_account,omitempty"`
	ToAccount             string             `bson:"to_account,omitempty" json:"to_account,omitempty"`
	Amount                decimal.Decimal    `bson:"amount" json:"amount"`
	Currency              string             `bson:"currency" json:"currency"`
	CreatedBy             string             `bson:"created_by" json:"created_by"`
	IdempotencyKey        string             `bson:"idempotency_key,omitempty" json:"idempotency_key,omitempty"`
	OriginalTransactionID string             `bson:"original_transaction_id,omitempty" json:"original_transaction_id,omitempty"`
	ReversalTransactionID string             `bson:"reversal_transaction_id,omitempty" json:"reversal_transaction_id,omitempty"`
	FailureReason         string             `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	Description           string             `bson:"description,omitempty" json:"description,omitempty"`
	Reference             string             `bson:"reference,omitempty" json:"reference,omitempty"`
	CreatedAt             time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `bson:"updated_at" json:"updated_at"`
	ProcessedAt           *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// TransactionRequest carries the validated inputs for a new transaction.
type TransactionRequest struct {
	Type           string
	FromAccount    string
	ToAccount      string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Reference      string
	IdempotencyKey string
	CreatedBy      string
}

// NewTransaction creates a new transaction in its initial saga position.
func NewTransaction(req *TransactionRequest) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		TransactionID:   fmt.Sprintf("TXN-%s", uuid.NewString()),
		Type:            req.Type,
		Status:          StatusPending,
		ProcessingState: StateInitiated,
		FromAccount:     req.FromAccount,
		ToAccount:       req.ToAccount,
		Amount:          req.Amount,
		Currency:        req.Currency,
		CreatedBy:       req.CreatedBy,
		IdempotencyKey:  req.IdempotencyKey,
		Description:     req.Description,
		Reference:       req.Reference,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewReversal builds the REVERSAL counterpart of a completed transaction:
// swapped sides, same amount and currency.
func (t *Transaction) NewReversal(reason, createdBy, idempotencyKey string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		TransactionID:         fmt.Sprintf("REV-%s", uuid.NewString()),
		Type:                  TypeReversal,
		Status:                StatusPending,
		ProcessingState:       StateInitiated,
		FromAccount:           t.ToAccount,
		ToAccount:             t.FromAccount,
		Amount:                t.Amount,
		Currency:              t.Currency,
		CreatedBy:             createdBy,
		IdempotencyKey:        idempotencyKey,
		OriginalTransactionID: t.TransactionID,
		Description:           reason,
		Reference:             t.TransactionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Validate checks the shape invariants: positive two-decimal amount, 3-letter
// currency, and the accounts the type requires.
func (t *Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return apperrors.ErrAmountNonPositive
	}
	if t.Amount.Exponent() < -2 {
		return apperrors.ErrAmountNonPositive.WithDetails("amount must have at most two decimal places")
	}
	if len(t.Currency) != 3 {
		return apperrors.ErrCurrencyMismatch.WithDetails("currency must be a 3-letter code")
	}

	switch t.Type {
	case TypeTransfer:
		if t.FromAccount == "" || t.ToAccount == "" {
			return apperrors.ErrMissingAccount.WithDetails("transfer requires both accounts")
		}
	case TypeWithdrawal, TypeFee:
		if t.FromAccount == "" {
			return apperrors.ErrMissingAccount.WithDetails("source account is required")
		}
	case TypeDeposit, TypeInterest, TypeRefund:
		if t.ToAccount == "" {
			return apperrors.ErrMissingAccount.WithDetails("destination account is required")
		}
	case TypeReversal:
		if t.OriginalTransactionID == "" {
			return apperrors.ErrMissingAccount.WithDetails("reversal requires an original transaction")
		}
	default:
		return apperrors.ErrMissingAccount.WithDetails(fmt.Sprintf("unknown transaction type %q", t.Type))
	}

	return nil
}

// HasDebitLeg reports whether a remote debit has to happen. Single-sided
// transactions still walk through DEBIT_APPLIED for a uniform audit record.
func (t *Transaction) HasDebitLeg() bool {
	return t.FromAccount != ""
}

// HasCreditLeg reports whether a remote credit has to happen.
func (t *Transaction) HasCreditLeg() bool {
	return t.ToAccount != ""
}

// ChargedAccount returns the account whose limits apply to this transaction.
func (t *Transaction) ChargedAccount() string {
	switch t.Type {
	case TypeTransfer, TypeWithdrawal, TypeFee:
		return t.FromAccount
	case TypeDeposit, TypeInterest, TypeRefund:
		return t.ToAccount
	}
	return ""
}

// Deterministic operation ids make every remote leg idempotent at the
// account side, and therefore safe to retry.

func (t *Transaction) DebitOperationID() string {
	return t.TransactionID + ":debit"
}

func (t *Transaction) CreditOperationID() string {
	return t.TransactionID + ":credit"
}

func (t *Transaction) CompensateOperationID() string {
	return t.TransactionID + ":compensate"
}

// IsTerminal reports whether the status admits no further mutation, except
// for setting the reversal pointer on a COMPLETED row.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusFailedManualAction, StatusReversed, StatusCancelled:
		return true
	}
	return false
}

// CanBeReversed reports whether a reversal may be attempted. Only completed
// non-reversal transactions without an existing reversal pointer qualify.
func (t *Transaction) CanBeReversed() bool {
	return t.Status == StatusCompleted && t.Type != TypeReversal && t.ReversalTransactionID == ""
}

// State transitions. Every transition is persisted by the caller as a single
// store update.

func (t *Transaction) MarkProcessing() {
	t.Status = StatusProcessing
	t.UpdatedAt = time.Now().UTC()
}

func (t *Transaction) MarkDebitApplied() {
	t.ProcessingState = StateDebitApplied
	t.UpdatedAt = time.Now().UTC()
}

func (t *Transaction) MarkCreditApplied() {
	t.ProcessingState = StateCreditApplied
	t.UpdatedAt = time.Now().UTC()
}

func (t *Transaction) MarkCompleted() {
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.ProcessingState = StateCompleted
	t.ProcessedAt = &now
	t.UpdatedAt = now
}

func (t *Transaction) MarkFailed(reason string) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.ProcessingState = StateCompleted
	t.FailureReason = reason
	t.ProcessedAt = &now
	t.UpdatedAt = now
}

func (t *Transaction) MarkCompensated() {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.ProcessingState = StateCompensated
	t.FailureReason = ReasonCreditFailed
	t.ProcessedAt = &now
	t.UpdatedAt = now
}

func (t *Transaction) MarkManualActionRequired() {
	now := time.Now().UTC()
	t.Status = StatusFailedManualAction
	t.ProcessingState = StateManualActionRequired
	t.ProcessedAt = &now
	t.UpdatedAt = now
}

func (t *Transaction) MarkReversed(reversalID string) {
	t.Status = StatusReversed
	t.ReversalTransactionID = reversalID
	t.UpdatedAt = time.Now().UTC()
}

// IsFailed reports whether the transaction ended in one of the two failed
// statuses. Failed reversals do not count against reversal uniqueness.
func (t *Transaction) IsFailed() bool {
	return t.Status == StatusFailed || t.Status == StatusFailedManualAction
}
