package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/budget"
	"github.com/Gemini-Podplai/mumabear/internal/database"
	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/internal/middleware"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// requireDB sends a 503 and returns false when running without a database.
func (h *Handlers) requireDB(c *gin.Context) bool {
	if h.store == nil {
		fail(c, http.StatusServiceUnavailable, "database unavailable")
		return false
	}
	return true
}

func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	now := time.Now()
	from, to = now.AddDate(0, -1, 0), now

	var err error
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			fail(c, http.StatusBadRequest, "invalid 'from' date format, use RFC3339")
			return from, to, false
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			fail(c, http.StatusBadRequest, "invalid 'to' date format, use RFC3339")
			return from, to, false
		}
	}
	if to.Before(from) {
		fail(c, http.StatusBadRequest, "'to' must not be before 'from'")
		return from, to, false
	}
	return from, to, true
}

// GetCostSummary handles GET /api/v1/costs/summary.
// Query params: dimension (user|model|provider|kind|variant), from, to.
func (h *Handlers) GetCostSummary(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	dimension := c.DefaultQuery("dimension", "model")
	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	summaries, err := h.store.GetCostSummary(c.Request.Context(), dimension, from, to)
	if errors.Is(err, database.ErrUnsupportedDimension) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"dimension": dimension,
		"from":      from,
		"to":        to,
		"data":      summaries,
	})
}

// GetRecentRequests handles GET /api/v1/costs/requests.
func (h *Handlers) GetRecentRequests(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 50
	}

	requests, err := h.store.GetRecentRequests(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(requests), "data": requests})
}

// ListBudgets handles GET /api/v1/budgets.
func (h *Handlers) ListBudgets(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	budgets, err := h.store.ListBudgets(c.Request.Context(), c.Query("scope"))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(budgets), "data": budgets})
}

// CreateBudgetRequest is the body of POST /api/v1/budgets.
type CreateBudgetRequest struct {
	Scope      string  `json:"scope" binding:"required"`
	EntityID   string  `json:"entity_id" binding:"required"`
	LimitUSD   float64 `json:"limit_usd" binding:"required,gt=0"`
	PeriodDays int     `json:"period_days"`
}

// CreateBudget handles POST /api/v1/budgets. The budget is written to the
// database and then synced to Redis; a failed sync rolls the write back.
func (h *Handlers) CreateBudget(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !budget.ValidScope(req.Scope) {
		fail(c, http.StatusBadRequest, "scope must be one of agent, team, user, org")
		return
	}
	if req.PeriodDays <= 0 {
		req.PeriodDays = 1
	}

	ctx := c.Request.Context()
	logger := logging.WithRequest(middleware.GetRequestID(c))

	existing, err := h.store.GetBudget(ctx, req.Scope, req.EntityID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	b := &models.Budget{
		ID:         uuid.New().String(),
		Scope:      req.Scope,
		EntityID:   req.EntityID,
		LimitUSD:   req.LimitUSD,
		PeriodDays: req.PeriodDays,
	}
	if existing != nil {
		b.ID = existing.ID
	}

	if err := h.store.UpsertBudget(ctx, b); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.enforcer.SetBudget(ctx, budget.BudgetScope(req.Scope), req.EntityID, req.LimitUSD, req.PeriodDays); err != nil {
		logger.WithError(err).Warn("Budget sync to Redis failed; rolling back")
		var rbErr error
		if existing != nil {
			rbErr = h.store.UpsertBudget(ctx, existing)
		} else {
			rbErr = h.store.DeleteBudget(ctx, req.Scope, req.EntityID)
		}
		if rbErr != nil {
			logger.WithError(rbErr).Error("Budget rollback failed")
		}
		fail(c, http.StatusInternalServerError, "failed to sync budget to cache, operation rolled back")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "budget": b})
}

// GetBudget handles GET /api/v1/budgets/:scope/:entity_id.
func (h *Handlers) GetBudget(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	scope, entityID := c.Param("scope"), c.Param("entity_id")

	b, err := h.store.GetBudget(c.Request.Context(), scope, entityID)
	if errors.Is(err, database.ErrNotFound) {
		fail(c, http.StatusNotFound, "budget not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	// Redis holds the live spend for the current period.
	if spent, err := h.enforcer.GetSpent(c.Request.Context(), budget.BudgetScope(scope), entityID); err != nil {
		logging.WithRequest(middleware.GetRequestID(c)).WithError(err).Warn("Failed to read live spend")
	} else if spent > 0 {
		b.SpentUSD = spent
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "budget": b})
}

// ResetBudgetSpend handles DELETE /api/v1/budgets/:scope/:entity_id/spend.
// It clears the live spend so the entity starts a new period.
func (h *Handlers) ResetBudgetSpend(c *gin.Context) {
	scope, entityID := c.Param("scope"), c.Param("entity_id")
	if !budget.ValidScope(scope) {
		fail(c, http.StatusBadRequest, "scope must be one of agent, team, user, org")
		return
	}
	if !h.enforcer.Enabled() {
		fail(c, http.StatusServiceUnavailable, "budget backend unavailable")
		return
	}
	if err := h.enforcer.ResetSpend(c.Request.Context(), budget.BudgetScope(scope), entityID); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	logging.WithRequest(middleware.GetRequestID(c)).WithFields(log.Fields{
		"scope":     scope,
		"entity_id": entityID,
	}).Info("Budget spend reset")
	c.JSON(http.StatusOK, gin.H{"success": true, "scope": scope, "entity_id": entityID})
}

// GetInsights handles GET /api/v1/insights.
func (h *Handlers) GetInsights(c *gin.Context) {
	if h.insights == nil {
		fail(c, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	all, err := h.insights.All(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(all), "data": all})
}

// GetReport handles GET /api/v1/report.
func (h *Handlers) GetReport(c *gin.Context) {
	if h.insights == nil {
		fail(c, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	report, err := h.insights.GenerateReport(c.Request.Context(), from, to)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}
