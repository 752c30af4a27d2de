package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

func validRequest(txType string) *TransactionRequest {
	req := &TransactionRequest{
		Type:     txType,
		Amount:   decimal.NewFromFloat(100.50),
		Currency: "USD",
		CreatedBy: "alice",
	}
	switch txType {
	case TypeTransfer:
		req.FromAccount = "ACC-1"
		req.ToAccount = "ACC-2"
	case TypeWithdrawal, TypeFee:
		req.FromAccount = "ACC-1"
	case TypeDeposit, TypeInterest, TypeRefund:
		req.ToAccount = "ACC-2"
	}
	return req
}

func TestNewTransaction_InitialShape(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))

	assert.True(t, strings.HasPrefix(tx.TransactionID, "TXN-"))
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, StateInitiated, tx.ProcessingState)
	assert.Nil(t, tx.ProcessedAt)
}

func TestValidate_AcceptsEveryMoneyMovementType(t *testing.T) {
	for _, txType := range []string{TypeTransfer, TypeDeposit, TypeWithdrawal, TypeFee, TypeInterest, TypeRefund} {
		tx := NewTransaction(validRequest(txType))
		assert.NoError(t, tx.Validate(), txType)
	}
}

func TestValidate_NonPositiveAmount(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	tx.Amount = decimal.Zero
	assert.ErrorIs(t, tx.Validate(), apperrors.ErrAmountNonPositive)

	tx.Amount = decimal.NewFromInt(-5)
	assert.ErrorIs(t, tx.Validate(), apperrors.ErrAmountNonPositive)
}

func TestValidate_TooManyDecimalPlaces(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	tx.Amount = decimal.RequireFromString("10.001")

	assert.ErrorIs(t, tx.Validate(), apperrors.ErrAmountNonPositive)
}

func TestValidate_BadCurrency(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	tx.Currency = "DOLLARS"

	assert.ErrorIs(t, tx.Validate(), apperrors.ErrCurrencyMismatch)
}

func TestValidate_MissingAccounts(t *testing.T) {
	transfer := NewTransaction(validRequest(TypeTransfer))
	transfer.ToAccount = ""
	assert.ErrorIs(t, transfer.Validate(), apperrors.ErrMissingAccount)

	withdrawal := NewTransaction(validRequest(TypeWithdrawal))
	withdrawal.FromAccount = ""
	assert.ErrorIs(t, withdrawal.Validate(), apperrors.ErrMissingAccount)

	deposit := NewTransaction(validRequest(TypeDeposit))
	deposit.ToAccount = ""
	assert.ErrorIs(t, deposit.Validate(), apperrors.ErrMissingAccount)
}

func TestValidate_UnknownType(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	tx.Type = "WIRE"

	assert.Error(t, tx.Validate())
}

func TestChargedAccount(t *testing.T) {
	assert.Equal(t, "ACC-1", NewTransaction(validRequest(TypeTransfer)).ChargedAccount())
	assert.Equal(t, "ACC-1", NewTransaction(validRequest(TypeWithdrawal)).ChargedAccount())
	assert.Equal(t, "ACC-2", NewTransaction(validRequest(TypeDeposit)).ChargedAccount())
}

func TestLegPresence(t *testing.T) {
	deposit := NewTransaction(validRequest(TypeDeposit))
	assert.False(t, deposit.HasDebitLeg())
	assert.True(t, deposit.HasCreditLeg())

	withdrawal := NewTransaction(validRequest(TypeWithdrawal))
	assert.True(t, withdrawal.HasDebitLeg())
	assert.False(t, withdrawal.HasCreditLeg())
}

func TestOperationIDsAreDeterministic(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))

	assert.Equal(t, tx.TransactionID+":debit", tx.DebitOperationID())
	assert.Equal(t, tx.TransactionID+":credit", tx.CreditOperationID())
	assert.Equal(t, tx.TransactionID+":compensate", tx.CompensateOperationID())
}

func TestNewReversal_SwapsSides(t *testing.T) {
	original := NewTransaction(validRequest(TypeTransfer))
	original.MarkCompleted()

	rev := original.NewReversal("dispute", "bob", "key-1")

	assert.True(t, strings.HasPrefix(rev.TransactionID, "REV-"))
	assert.Equal(t, TypeReversal, rev.Type)
	assert.Equal(t, original.ToAccount, rev.FromAccount)
	assert.Equal(t, original.FromAccount, rev.ToAccount)
	assert.True(t, rev.Amount.Equal(original.Amount))
	assert.Equal(t, original.TransactionID, rev.OriginalTransactionID)
	assert.NoError(t, rev.Validate())
}

func TestCanBeReversed(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	assert.False(t, tx.CanBeReversed(), "pending")

	tx.MarkCompleted()
	assert.True(t, tx.CanBeReversed())

	tx.MarkReversed("REV-1")
	assert.False(t, tx.CanBeReversed(), "already reversed")

	rev := tx.NewReversal("dispute", "bob", "")
	rev.MarkCompleted()
	assert.False(t, rev.CanBeReversed(), "reversal of a reversal")
}

func TestIsTerminal(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	assert.False(t, tx.IsTerminal())

	tx.MarkProcessing()
	assert.False(t, tx.IsTerminal())

	tx.MarkCompleted()
	assert.True(t, tx.IsTerminal())

	failed := NewTransaction(validRequest(TypeTransfer))
	failed.MarkFailed(ReasonInsufficientFunds)
	assert.True(t, failed.IsTerminal())
	assert.True(t, failed.IsFailed())

	parked := NewTransaction(validRequest(TypeTransfer))
	parked.MarkManualActionRequired()
	assert.True(t, parked.IsTerminal())
	assert.True(t, parked.IsFailed())
}

func TestMarkCompensatedRecordsCreditFailure(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))
	tx.MarkProcessing()
	tx.MarkDebitApplied()
	tx.MarkCompensated()

	assert.Equal(t, StatusFailed, tx.Status)
	assert.Equal(t, StateCompensated, tx.ProcessingState)
	assert.Equal(t, ReasonCreditFailed, tx.FailureReason)
	assert.NotNil(t, tx.ProcessedAt)
}

func TestMarkTransitionsTrackSagaPosition(t *testing.T) {
	tx := NewTransaction(validRequest(TypeTransfer))

	tx.MarkProcessing()
	assert.Equal(t, StatusProcessing, tx.Status)
	assert.Equal(t, StateInitiated, tx.ProcessingState)

	tx.MarkDebitApplied()
	assert.Equal(t, StateDebitApplied, tx.ProcessingState)

	tx.MarkCreditApplied()
	assert.Equal(t, StateCreditApplied, tx.ProcessingState)

	tx.MarkCompleted()
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, StateCompleted, tx.ProcessingState)
}
