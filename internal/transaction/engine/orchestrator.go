package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/client"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/limits"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/repository"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// Orchestrator drives a transaction from request to terminal state: validate,
// load accounts, enforce limits, then walk the saga
// INITIATED -> DEBIT_APPLIED -> CREDIT_APPLIED -> COMPLETED with compensation
// on a failed credit leg. Every remote leg is idempotent by operation id, so
// any step can be replayed after a crash.
type Orchestrator interface {
	Submit(ctx context.Context, req *SubmitRequest) (*models.Transaction, error)
	Reverse(ctx context.Context, req *ReversalRequest) (*models.Transaction, error)
	Resume(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, transactionID string) (*models.Transaction, error)
	AccountHistory(ctx context.Context, accountID string, page models.PageSpec) (*models.Page, error)
	Search(ctx context.Context, filter *models.TransactionFilter, page models.PageSpec) (*models.Page, error)
}

// SubmitRequest is a validated-token transaction request. Bearer carries the
// caller's raw token, forwarded unchanged to the account service so both
// sides see the same principal.
type SubmitRequest struct {
	Type           string
	FromAccount    string
	ToAccount      string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Reference      string
	IdempotencyKey string
	Subject        string
	Bearer         string
}

type ReversalRequest struct {
	OriginalID     string
	Reason         string
	IdempotencyKey string
	Subject        string
	Bearer         string
}

// EventPublisher emits transaction lifecycle events. Publish failures are
// logged, never allowed to fail the money path.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, tx *models.Transaction, event string) error
	PublishManualActionRequired(ctx context.Context, tx *models.Transaction) error
}

// Metrics records transaction outcomes for the monitoring endpoint.
type Metrics interface {
	RecordTransaction(txType, status string, duration time.Duration)
}

// ServiceTokenSource mints the bearer the sweeper uses when replaying
// orchestrations that no longer have a caller attached.
type ServiceTokenSource interface {
	ServiceToken() (string, error)
}

type orchestrator struct {
	transactions repository.TransactionRepository
	accounts     client.AccountClient
	enforcer     *limits.Enforcer
	publisher    EventPublisher
	metrics      Metrics
	tokens       ServiceTokenSource
	audit        *logrus.Logger
}

func NewOrchestrator(
	transactions repository.TransactionRepository,
	accounts client.AccountClient,
	enforcer *limits.Enforcer,
	publisher EventPublisher,
	metrics Metrics,
	tokens ServiceTokenSource,
	audit *logrus.Logger,
) Orchestrator {
	return &orchestrator{
		transactions: transactions,
		accounts:     accounts,
		enforcer:     enforcer,
		publisher:    publisher,
		metrics:      metrics,
		tokens:       tokens,
		audit:        audit,
	}
}

func (o *orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*models.Transaction, error) {
	started := time.Now()

	// Idempotency fast path: a known key returns the prior outcome verbatim.
	if req.IdempotencyKey != "" {
		existing, err := o.transactions.FindByIdempotency(ctx, req.Subject, req.Type, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, terminalOutcome(existing)
		}
	}

	tx := models.NewTransaction(&models.TransactionRequest{
		Type:           req.Type,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      req.Subject,
	})

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if err := o.validateAccounts(ctx, tx, req.Bearer); err != nil {
		return nil, err
	}

	if err := o.transactions.Insert(ctx, tx); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateIdempotency) && req.IdempotencyKey != "" {
			// Lost a race with a concurrent identical request; hand back its row.
			existing, findErr := o.transactions.FindByIdempotency(ctx, req.Subject, req.Type, req.IdempotencyKey)
			if findErr == nil && existing != nil {
				return existing, terminalOutcome(existing)
			}
		}
		return nil, err
	}

	err := o.run(ctx, tx, req.Bearer)
	o.recordOutcome(tx, started)
	return tx, err
}

// validateAccounts loads every referenced account through the resilient
// client, and checks existence, active flag, currency agreement, and the
// charged side's limits.
func (o *orchestrator) validateAccounts(ctx context.Context, tx *models.Transaction, bearer string) error {
	var charged *client.Account

	for _, accountID := range []string{tx.FromAccount, tx.ToAccount} {
		if accountID == "" {
			continue
		}
		account, err := o.accounts.GetAccount(ctx, accountID, bearer)
		if err != nil {
			return err
		}
		if !account.Active {
			return apperrors.ErrAccountInactive.WithDetails(accountID)
		}
		if account.Currency != tx.Currency {
			return apperrors.ErrCurrencyMismatch.WithDetails(
				fmt.Sprintf("account %s holds %s, transaction is %s", accountID, account.Currency, tx.Currency))
		}
		if accountID == tx.ChargedAccount() {
			charged = account
		}
	}

	if charged != nil {
		if err := o.enforcer.Check(ctx, charged.ID, charged.AccountType, tx.Type, tx.Amount); err != nil {
			return err
		}
	}

	return nil
}

// run walks the persisted transaction through the state machine, starting
// from wherever its processing state says it is. Used for fresh submissions
// and for sweeper replays alike.
func (o *orchestrator) run(ctx context.Context, tx *models.Transaction, bearer string) error {
	if tx.Status == models.StatusPending {
		tx.MarkProcessing()
		if err := o.transactions.Update(ctx, tx); err != nil {
			return err
		}
	}

	if tx.ProcessingState == models.StateInitiated {
		if err := o.debitLeg(ctx, tx, bearer); err != nil {
			return err
		}
	}

	if tx.ProcessingState == models.StateDebitApplied {
		if err := o.creditLeg(ctx, tx, bearer); err != nil {
			return err
		}
	}

	if tx.ProcessingState == models.StateCreditApplied {
		tx.MarkCompleted()
		if err := o.transactions.Update(ctx, tx); err != nil {
			return err
		}
		o.publish(ctx, tx, "transaction.completed")
	}

	return nil
}

// debitLeg debits the source account. A transaction without a debit side
// still advances through DEBIT_APPLIED so the audit trail is uniform.
func (o *orchestrator) debitLeg(ctx context.Context, tx *models.Transaction, bearer string) error {
	if tx.HasDebitLeg() {
		op := &client.BalanceOp{
			OperationID:   tx.DebitOperationID(),
			TransactionID: tx.TransactionID,
			Delta:         tx.Amount.Neg(),
			Reason:        "debit " + tx.Type,
			AllowNegative: false,
		}

		result, err := o.accounts.ApplyBalanceOp(ctx, tx.FromAccount, op, bearer)
		if err != nil {
			return o.fail(ctx, tx, models.ReasonUpstreamUnavailable, err)
		}
		if result.Rejected() {
			return o.fail(ctx, tx, models.ReasonInsufficientFunds, apperrors.ErrInsufficientFunds)
		}
		if !result.Succeeded() {
			return o.fail(ctx, tx, models.ReasonUpstreamUnavailable,
				apperrors.ErrUpstreamRejected.WithDetails("unexpected debit outcome "+result.Status))
		}
	}

	tx.MarkDebitApplied()
	return o.transactions.Update(ctx, tx)
}

// creditLeg credits the destination account, compensating the debit when the
// credit cannot be applied.
func (o *orchestrator) creditLeg(ctx context.Context, tx *models.Transaction, bearer string) error {
	if tx.HasCreditLeg() {
		op := &client.BalanceOp{
			OperationID:   tx.CreditOperationID(),
			TransactionID: tx.TransactionID,
			Delta:         tx.Amount,
			Reason:        "credit " + tx.Type,
			AllowNegative: true,
		}

		result, err := o.accounts.ApplyBalanceOp(ctx, tx.ToAccount, op, bearer)
		if err != nil {
			return o.compensate(ctx, tx, bearer, err)
		}
		if !result.Succeeded() {
			return o.compensate(ctx, tx, bearer,
				apperrors.ErrUpstreamRejected.WithDetails("unexpected credit outcome "+result.Status))
		}
	}

	tx.MarkCreditApplied()
	return o.transactions.Update(ctx, tx)
}

// compensate returns the debited amount to the source account. If the
// compensation itself fails after the full retry budget, money conservation
// is at risk: the transaction parks in MANUAL_ACTION_REQUIRED and a
// high-severity audit event is emitted.
func (o *orchestrator) compensate(ctx context.Context, tx *models.Transaction, bearer string, cause error) error {
	if !tx.HasDebitLeg() {
		// Nothing was debited; the failed credit leaves no residue.
		return o.fail(ctx, tx, models.ReasonUpstreamUnavailable, cause)
	}

	op := &client.BalanceOp{
		OperationID:   tx.CompensateOperationID(),
		TransactionID: tx.TransactionID,
		Delta:         tx.Amount,
		Reason:        "compensate " + tx.Type,
		AllowNegative: true,
	}

	result, err := o.accounts.ApplyBalanceOp(ctx, tx.FromAccount, op, bearer)
	if err == nil && result.Succeeded() {
		tx.MarkCompensated()
		if updateErr := o.transactions.Update(ctx, tx); updateErr != nil {
			return updateErr
		}
		o.publish(ctx, tx, "transaction.compensated")
		return apperrors.ErrUpstreamUnavailable.WithDetails("credit leg failed, debit compensated")
	}

	tx.MarkManualActionRequired()
	if updateErr := o.transactions.Update(ctx, tx); updateErr != nil {
		return updateErr
	}

	o.audit.WithFields(logrus.Fields{
		"transaction_id": tx.TransactionID,
		"from_account":   tx.FromAccount,
		"to_account":     tx.ToAccount,
		"amount":         tx.Amount.String(),
		"currency":       tx.Currency,
		"cause":          fmt.Sprint(cause),
	}).Error("Compensation failed, manual operator action required")

	if o.publisher != nil {
		if pubErr := o.publisher.PublishManualActionRequired(ctx, tx); pubErr != nil {
			logrus.WithError(pubErr).Error("Failed to publish manual-action event")
		}
	}

	return apperrors.ErrManualActionRequired
}

// fail parks the transaction in terminal FAILED with the given reason.
func (o *orchestrator) fail(ctx context.Context, tx *models.Transaction, reason string, cause error) error {
	tx.MarkFailed(reason)
	if err := o.transactions.Update(ctx, tx); err != nil {
		return err
	}
	o.publish(ctx, tx, "transaction.failed")

	var appErr *apperrors.AppError
	if errors.As(cause, &appErr) {
		return appErr
	}
	return apperrors.ErrUpstreamUnavailable.WithDetails(fmt.Sprint(cause))
}

func (o *orchestrator) Reverse(ctx context.Context, req *ReversalRequest) (*models.Transaction, error) {
	started := time.Now()

	if req.IdempotencyKey != "" {
		existing, err := o.transactions.FindByIdempotency(ctx, req.Subject, models.TypeReversal, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, terminalOutcome(existing)
		}
	}

	original, err := o.transactions.FindByID(ctx, req.OriginalID)
	if err != nil {
		return nil, err
	}

	if original.Type == models.TypeReversal || original.Status != models.StatusCompleted {
		if original.Status == models.StatusReversed {
			return nil, apperrors.ErrAlreadyReversed
		}
		return nil, apperrors.ErrNotReversible
	}

	reversals, err := o.transactions.FindReversals(ctx, original.TransactionID)
	if err != nil {
		return nil, err
	}
	for _, r := range reversals {
		if !r.IsFailed() {
			return nil, apperrors.ErrAlreadyReversed
		}
	}

	reversal := original.NewReversal(req.Reason, req.Subject, req.IdempotencyKey)
	if err := reversal.Validate(); err != nil {
		return nil, err
	}

	// Claim the original and insert the reversal in one unit of work. The
	// conditional update plus the partial unique index defeat concurrent
	// duplicates.
	if err := o.transactions.ClaimReversal(ctx, original, reversal); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateIdempotency) && req.IdempotencyKey != "" {
			existing, findErr := o.transactions.FindByIdempotency(ctx, req.Subject, models.TypeReversal, req.IdempotencyKey)
			if findErr == nil && existing != nil {
				return existing, terminalOutcome(existing)
			}
		}
		return nil, err
	}

	runErr := o.run(ctx, reversal, req.Bearer)
	o.finishReversal(ctx, original, reversal)
	o.recordOutcome(reversal, started)

	return reversal, runErr
}

// finishReversal settles the original after the reversal reached a terminal
// state: flip to REVERSED on success, release the claim on plain failure.
// A reversal parked in MANUAL_ACTION_REQUIRED keeps the claim until an
// operator acts.
func (o *orchestrator) finishReversal(ctx context.Context, original, reversal *models.Transaction) {
	switch reversal.Status {
	case models.StatusCompleted:
		if err := o.transactions.MarkReversed(ctx, original.TransactionID, reversal.TransactionID); err != nil {
			logrus.WithError(err).WithField("transaction_id", original.TransactionID).
				Error("Failed to mark original transaction reversed")
		}
	case models.StatusFailed:
		if err := o.transactions.ClearReversalPointer(ctx, original.TransactionID, reversal.TransactionID); err != nil {
			logrus.WithError(err).WithField("transaction_id", original.TransactionID).
				Error("Failed to release reversal claim")
		}
	}
}

// Resume replays a stalled orchestration from its recorded processing state,
// reusing the same deterministic operation ids. Called by the recovery
// sweeper.
func (o *orchestrator) Resume(ctx context.Context, tx *models.Transaction) error {
	if tx.IsTerminal() {
		return nil
	}

	bearer, err := o.tokens.ServiceToken()
	if err != nil {
		return fmt.Errorf("failed to mint service token: %w", err)
	}

	runErr := o.run(ctx, tx, bearer)

	if tx.Type == models.TypeReversal && tx.OriginalTransactionID != "" {
		if original, findErr := o.transactions.FindByID(ctx, tx.OriginalTransactionID); findErr == nil {
			o.finishReversal(ctx, original, tx)
		}
	}

	return runErr
}

func (o *orchestrator) Get(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return o.transactions.FindByID(ctx, transactionID)
}

func (o *orchestrator) AccountHistory(ctx context.Context, accountID string, page models.PageSpec) (*models.Page, error) {
	return o.transactions.Page(ctx, &models.TransactionFilter{AccountID: accountID}, page)
}

func (o *orchestrator) Search(ctx context.Context, filter *models.TransactionFilter, page models.PageSpec) (*models.Page, error) {
	return o.transactions.Page(ctx, filter, page)
}

func (o *orchestrator) publish(ctx context.Context, tx *models.Transaction, event string) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishTransactionEvent(ctx, tx, event); err != nil {
		logrus.WithError(err).WithField("event", event).Warn("Failed to publish transaction event")
	}
}

func (o *orchestrator) recordOutcome(tx *models.Transaction, started time.Time) {
	if o.metrics != nil {
		o.metrics.RecordTransaction(tx.Type, tx.Status, time.Since(started))
	}
}

// terminalOutcome reconstructs the error a persisted transaction originally
// surfaced, so idempotent replays answer identically to the first attempt.
func terminalOutcome(tx *models.Transaction) error {
	switch tx.Status {
	case models.StatusFailedManualAction:
		return apperrors.ErrManualActionRequired
	case models.StatusFailed:
		switch tx.FailureReason {
		case models.ReasonInsufficientFunds:
			return apperrors.ErrInsufficientFunds
		case models.ReasonLimitExceeded:
			return apperrors.ErrLimitExceeded
		default:
			return apperrors.ErrUpstreamUnavailable
		}
	}
	return nil
}
