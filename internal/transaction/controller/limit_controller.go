package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/cache"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/repository"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// LimitController exposes the admin-only limit configuration endpoints.
// Mutations invalidate the cache so enforcement picks the change up within
// one request rather than one TTL.
type LimitController struct {
	limits repository.LimitRepository
	cache  *cache.LimitCache
}

func NewLimitController(limits repository.LimitRepository, limitCache *cache.LimitCache) *LimitController {
	return &LimitController{
		limits: limits,
		cache:  limitCache,
	}
}

type limitRequest struct {
	AccountType  string `json:"account_type" binding:"required"`
	Type         string `json:"type" binding:"required"`
	PerTxLimit   string `json:"per_tx_limit"`
	DailyLimit   string `json:"daily_limit"`
	MonthlyLimit string `json:"monthly_limit"`
	DailyCount   *int64 `json:"daily_count"`
	MonthlyCount *int64 `json:"monthly_count"`
	Active       bool   `json:"active"`
}

// List handles GET /api/admin/limits.
func (lc *LimitController) List(c *gin.Context) {
	limits, err := lc.limits.List(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"limits": limits})
}

// Upsert handles PUT /api/admin/limits.
func (lc *LimitController) Upsert(c *gin.Context) {
	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	limit := &models.TransactionLimit{
		AccountType:  req.AccountType,
		Type:         req.Type,
		DailyCount:   req.DailyCount,
		MonthlyCount: req.MonthlyCount,
		Active:       req.Active,
	}

	var parseErr error
	if limit.PerTxLimit, parseErr = parseOptionalDecimal(req.PerTxLimit); parseErr != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "per_tx_limit is not a valid decimal"))
		return
	}
	if limit.DailyLimit, parseErr = parseOptionalDecimal(req.DailyLimit); parseErr != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "daily_limit is not a valid decimal"))
		return
	}
	if limit.MonthlyLimit, parseErr = parseOptionalDecimal(req.MonthlyLimit); parseErr != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, "monthly_limit is not a valid decimal"))
		return
	}

	if err := lc.limits.Upsert(c.Request.Context(), limit); err != nil {
		renderError(c, err)
		return
	}

	lc.invalidate(c, limit.AccountType, limit.Type)
	c.JSON(http.StatusOK, limit)
}

// Delete handles DELETE /api/admin/limits/:accountType/:type.
func (lc *LimitController) Delete(c *gin.Context) {
	accountType := c.Param("accountType")
	txType := c.Param("type")

	if err := lc.limits.Delete(c.Request.Context(), accountType, txType); err != nil {
		renderError(c, err)
		return
	}

	lc.invalidate(c, accountType, txType)
	c.Status(http.StatusNoContent)
}

func (lc *LimitController) invalidate(c *gin.Context, accountType, txType string) {
	if lc.cache == nil {
		return
	}
	// Best effort: the TTL bounds staleness if the invalidation is lost.
	_ = lc.cache.Invalidate(c.Request.Context(), accountType, txType)
}

func parseOptionalDecimal(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
