package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/engine"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/middleware"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// TransactionController exposes the money movement endpoints. Amounts travel
// as strings on the wire and are parsed into exact decimals.
type TransactionController struct {
	orchestrator engine.Orchestrator
}

func NewTransactionController(orchestrator engine.Orchestrator) *TransactionController {
	return &TransactionController{orchestrator: orchestrator}
}

type transactionRequest struct {
	FromAccount    string `json:"from_account"`
	ToAccount      string `json:"to_account"`
	Amount         string `json:"amount" binding:"required"`
	Currency       string `json:"currency" binding:"required"`
	Description    string `json:"description"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
}

type reversalRequest struct {
	Reason         string `json:"reason" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Transfer handles POST /api/transactions/transfer.
func (tc *TransactionController) Transfer(c *gin.Context) {
	tc.submit(c, models.TypeTransfer)
}

// Deposit handles POST /api/transactions/deposit.
func (tc *TransactionController) Deposit(c *gin.Context) {
	tc.submit(c, models.TypeDeposit)
}

// Withdraw handles POST /api/transactions/withdraw.
func (tc *TransactionController) Withdraw(c *gin.Context) {
	tc.submit(c, models.TypeWithdrawal)
}

func (tc *TransactionController) submit(c *gin.Context, txType string) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		renderError(c, apperrors.ErrAmountNonPositive.WithDetails("amount is not a valid decimal"))
		return
	}

	tx, submitErr := tc.orchestrator.Submit(c.Request.Context(), &engine.SubmitRequest{
		Type:           txType,
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         amount,
		Currency:       req.Currency,
		Description:    req.Description,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		Subject:        middleware.Subject(c),
		Bearer:         middleware.Bearer(c),
	})

	renderOutcome(c, tx, submitErr, http.StatusCreated)
}

// Reverse handles POST /api/transactions/:id/reverse.
func (tc *TransactionController) Reverse(c *gin.Context) {
	var req reversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	reversal, reverseErr := tc.orchestrator.Reverse(c.Request.Context(), &engine.ReversalRequest{
		OriginalID:     c.Param("id"),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Subject:        middleware.Subject(c),
		Bearer:         middleware.Bearer(c),
	})

	renderOutcome(c, reversal, reverseErr, http.StatusOK)
}

// Get handles GET /api/transactions/:id.
func (tc *TransactionController) Get(c *gin.Context) {
	tx, err := tc.orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// AccountHistory handles GET /api/transactions/account/:id.
func (tc *TransactionController) AccountHistory(c *gin.Context) {
	page, err := tc.orchestrator.AccountHistory(c.Request.Context(), c.Param("id"), pageSpec(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Search handles GET /api/transactions/search.
func (tc *TransactionController) Search(c *gin.Context) {
	filter, err := buildSearchFilter(c)
	if err != nil {
		renderError(c, err)
		return
	}

	page, err := tc.orchestrator.Search(c.Request.Context(), filter, pageSpec(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func buildSearchFilter(c *gin.Context) (*models.TransactionFilter, error) {
	filter := &models.TransactionFilter{
		AccountID:   c.Query("account_id"),
		Type:        c.Query("type"),
		Status:      c.Query("status"),
		Description: c.Query("description"),
		Reference:   c.Query("reference"),
	}

	if raw := c.Query("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "start_date must be RFC3339")
		}
		filter.StartDate = &t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "end_date must be RFC3339")
		}
		filter.EndDate = &t
	}
	if raw := c.Query("min_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "min_amount is not a valid decimal")
		}
		filter.MinAmount = &d
	}
	if raw := c.Query("max_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "max_amount is not a valid decimal")
		}
		filter.MaxAmount = &d
	}

	return filter, nil
}

func pageSpec(c *gin.Context) models.PageSpec {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return models.PageSpec{Limit: limit, Offset: offset}
}

// renderOutcome writes the transaction row together with the HTTP status the
// orchestration outcome maps to. A failed transaction still returns its row,
// so the client sees the recorded failure reason.
func renderOutcome(c *gin.Context, tx *models.Transaction, err error, successStatus int) {
	if err != nil {
		appErr := apperrors.FromError(err)
		if !errors.As(err, new(*apperrors.AppError)) {
			logrus.WithError(err).Error("Transaction processing failed")
		}
		body := gin.H{
			"error":   appErr.Code,
			"message": appErr.Message,
		}
		if appErr.Details != "" {
			body["details"] = appErr.Details
		}
		if tx != nil {
			body["transaction"] = tx
		}
		c.JSON(appErr.Status, body)
		return
	}

	c.JSON(successStatus, tx)
}

func renderError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	if appErr.Code == "INTERNAL_ERROR" {
		logrus.WithError(err).Error("Request failed")
	}
	body := gin.H{
		"error":   appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	c.JSON(appErr.Status, body)
}
