package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
)

func TestUsageMatch_OutgoingTypesChargeSource(t *testing.T) {
	since := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	for _, txType := range []string{models.TypeTransfer, models.TypeWithdrawal, models.TypeFee} {
		match := usageMatch("ACC-1", txType, since)

		assert.Equal(t, "ACC-1", match["from_account"], txType)
		assert.NotContains(t, match, "to_account",
			"an incoming %s must not count against the recipient's allowance", txType)
		assert.NotContains(t, match, "$or")
		assert.Equal(t, txType, match["type"])
		assert.Equal(t, models.StatusCompleted, match["status"])
	}
}

func TestUsageMatch_IncomingTypesChargeDestination(t *testing.T) {
	since := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	for _, txType := range []string{models.TypeDeposit, models.TypeInterest, models.TypeRefund} {
		match := usageMatch("ACC-2", txType, since)

		assert.Equal(t, "ACC-2", match["to_account"], txType)
		assert.NotContains(t, match, "from_account")
		assert.NotContains(t, match, "$or")
	}
}

func TestUsageMatch_MirrorsChargedAccount(t *testing.T) {
	since := time.Now().UTC()
	transfer := models.NewTransaction(&models.TransactionRequest{
		Type:        models.TypeTransfer,
		FromAccount: "ACC-1",
		ToAccount:   "ACC-2",
	})
	deposit := models.NewTransaction(&models.TransactionRequest{
		Type:      models.TypeDeposit,
		ToAccount: "ACC-2",
	})

	assert.Equal(t, transfer.ChargedAccount(),
		usageMatch(transfer.ChargedAccount(), transfer.Type, since)["from_account"])
	assert.Equal(t, deposit.ChargedAccount(),
		usageMatch(deposit.ChargedAccount(), deposit.Type, since)["to_account"])
}
