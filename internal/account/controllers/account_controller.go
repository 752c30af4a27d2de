package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/middleware"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/services"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type AccountController struct {
	accounts services.AccountService
	balances services.BalanceService
}

func NewAccountController(accounts services.AccountService, balances services.BalanceService) *AccountController {
	return &AccountController{
		accounts: accounts,
		balances: balances,
	}
}

type createAccountRequest struct {
	AccountType string `json:"account_type" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	CreditLimit string `json:"credit_limit"`
}

type setBalanceRequest struct {
	Balance string `json:"balance" binding:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Create handles POST /api/accounts. Accounts belong to the caller unless an
// admin names another owner.
func (ac *AccountController) Create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	create := &services.CreateAccountRequest{
		OwnerID:     middleware.Subject(c),
		AccountType: req.AccountType,
		Currency:    req.Currency,
	}
	if owner := c.Query("owner_id"); owner != "" && middleware.HasRole(c, "admin") {
		create.OwnerID = owner
	}
	if req.CreditLimit != "" {
		limit, err := decimal.NewFromString(req.CreditLimit)
		if err != nil {
			renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "credit_limit is not a valid decimal"))
			return
		}
		create.CreditLimit = &limit
	}

	account, err := ac.accounts.Create(create)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

// Get handles GET /api/accounts/:id. Owners see their own accounts; admin and
// service principals see all.
func (ac *AccountController) Get(c *gin.Context) {
	account, err := ac.accounts.Get(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	// Any authenticated principal may read account shape: the transaction
	// service forwards the sender's token and must see both sides of a
	// transfer.
	body := gin.H{
		"id":           account.AccountID,
		"owner_id":     account.OwnerID,
		"account_type": account.AccountType,
		"balance":      account.Balance,
		"currency":     account.Currency,
		"active":       account.Active,
	}
	if credit := account.AvailableCredit(); credit != nil {
		body["available_credit"] = credit
	}
	c.JSON(http.StatusOK, body)
}

// List handles GET /api/accounts, scoped to the caller's own accounts.
func (ac *AccountController) List(c *gin.Context) {
	offset, limit := pagination(c)
	accounts, total, err := ac.accounts.ListByOwner(middleware.Subject(c), offset, limit)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  accounts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// SetBalance handles PUT /api/accounts/:id/balance. Admin only; writes the
// balance directly without a ledger row.
func (ac *AccountController) SetBalance(c *gin.Context) {
	var req setBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	balance, err := decimal.NewFromString(req.Balance)
	if err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "balance is not a valid decimal"))
		return
	}

	account, err := ac.accounts.SetBalance(c.Param("id"), balance, middleware.Subject(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// SetActive handles PUT /api/accounts/:id/active. Admin only.
func (ac *AccountController) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	account, err := ac.accounts.SetActive(c.Param("id"), *req.Active)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// ApplyBalanceOp handles POST /api/accounts/:id/balance-ops. Every ledger
// outcome answers 200; applied/status carry the verdict so replays stay
// byte-stable.
func (ac *AccountController) ApplyBalanceOp(c *gin.Context) {
	var req services.BalanceOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	result, err := ac.balances.Apply(c.Param("id"), &req)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BalanceOps handles GET /api/accounts/:id/balance-ops.
func (ac *AccountController) BalanceOps(c *gin.Context) {
	account, err := ac.accounts.Get(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	if !ac.canAccess(c, account.OwnerID) {
		renderError(c, apperrors.ErrRoleRequired.WithDetails("cannot access another owner's account"))
		return
	}

	offset, limit := pagination(c)
	ops, total, err := ac.balances.History(account.AccountID, offset, limit)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  ops,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (ac *AccountController) canAccess(c *gin.Context, ownerID string) bool {
	if middleware.Subject(c) == ownerID {
		return true
	}
	return middleware.HasRole(c, "admin") || middleware.HasRole(c, "service")
}

func pagination(c *gin.Context) (int, int) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return offset, limit
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
