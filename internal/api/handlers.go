// Package api implements the HTTP endpoints of the Mama Bear express router.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/analytics"
	"github.com/Gemini-Podplai/mumabear/internal/budget"
	"github.com/Gemini-Podplai/mumabear/internal/express"
	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/internal/middleware"
	"github.com/Gemini-Podplai/mumabear/internal/session"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
	"github.com/gin-gonic/gin"
)

// Version is reported by /health.
const Version = "0.3.0"

// Store is the persistence used by the management endpoints.
// database.DB satisfies it.
type Store interface {
	GetCostSummary(ctx context.Context, dimension string, from, to time.Time) ([]models.CostSummary, error)
	GetRecentRequests(ctx context.Context, limit int) ([]models.RequestRecord, error)
	ListBudgets(ctx context.Context, scope string) ([]models.Budget, error)
	GetBudget(ctx context.Context, scope, entityID string) (*models.Budget, error)
	UpsertBudget(ctx context.Context, b *models.Budget) error
	DeleteBudget(ctx context.Context, scope, entityID string) error
}

// Insights produces analytics for the management endpoints.
type Insights interface {
	All(ctx context.Context) ([]analytics.Insight, error)
	GenerateReport(ctx context.Context, from, to time.Time) (*analytics.Report, error)
}

// Deps are the collaborators of Handlers. Service and Sessions are required.
// Store and Insights must be left nil (not typed-nil) when there is no database.
type Deps struct {
	Service  *express.Service
	Sessions *session.Manager
	Hub      *session.Hub
	Store    Store
	Insights Insights
	Enforcer *budget.Enforcer
	// Integrations reports optional integrations (e.g. pipedream, mem0) as
	// configured or not on /health.
	Integrations map[string]bool
}

// Handlers provides the HTTP endpoint handlers.
type Handlers struct {
	svc          *express.Service
	sessions     *session.Manager
	hub          *session.Hub
	store        Store
	insights     Insights
	enforcer     *budget.Enforcer
	integrations map[string]bool
}

// NewHandlers creates a Handlers instance.
func NewHandlers(d Deps) *Handlers {
	if d.Enforcer == nil {
		d.Enforcer = budget.NewEnforcer(nil, true)
	}
	return &Handlers{
		svc:          d.Service,
		sessions:     d.Sessions,
		hub:          d.Hub,
		store:        d.Store,
		insights:     d.Insights,
		enforcer:     d.Enforcer,
		integrations: d.Integrations,
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// HealthCheck returns the service health status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "mamabear-express",
		"version":       Version,
		"database":      h.store != nil,
		"budget_redis":  h.enforcer.Enabled(),
		"agentic_mode":  h.svc.AgenticMode(),
		"integrations":  h.integrations,
		"live_sessions": h.sessions.Count(),
	})
}

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Message string         `json:"message"`
	UserID  string         `json:"user_id"`
	Variant string         `json:"variant"`
	Context map[string]any `json:"context"`
	Mode    string         `json:"mode"`
	Model   string         `json:"model"`
}

func (h *Handlers) chat(c *gin.Context) (*express.ChatResponse, bool) {
	var body ChatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return nil, false
	}

	reqID := middleware.GetRequestID(c)
	resp, err := h.svc.Chat(c.Request.Context(), express.ChatRequest{
		RequestID: reqID,
		Message:   body.Message,
		UserID:    body.UserID,
		Variant:   body.Variant,
		Mode:      body.Mode,
		Model:     body.Model,
		Context:   body.Context,
	})
	switch {
	case err == nil:
	case errors.Is(err, express.ErrMessageRequired):
		fail(c, http.StatusBadRequest, "Message is required")
		return nil, false
	case errors.Is(err, express.ErrBudgetExceeded):
		fail(c, http.StatusPaymentRequired, "Budget exceeded for user "+body.UserID)
		return nil, false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, "Server busy, please retry")
		return nil, false
	default:
		logging.WithRequest(reqID).WithError(err).Error("Chat failed")
		fail(c, http.StatusInternalServerError, "Chat failed")
		return nil, false
	}

	c.Header("X-Cost-USD", fmt.Sprintf("%.6f", resp.CostUSD))
	c.Header("X-Latency-Ms", fmt.Sprintf("%d", resp.Latency.Milliseconds()))
	return resp, true
}

// ExpressChat handles POST /api/mama-bear/express-chat.
func (h *Handlers) ExpressChat(c *gin.Context) {
	resp, ok := h.chat(c)
	if !ok {
		return
	}

	out := gin.H{
		"success":          true,
		"response":         resp.Response,
		"fallback_used":    resp.FallbackUsed,
		"response_time_ms": resp.Latency.Milliseconds(),
		"performance": gin.H{
			"execution_time_ms": resp.Latency.Milliseconds(),
			"model_used":        resp.ModelUsed,
			"routing_type":      resp.Decision.Kind,
			"performance_tier":  resp.PerformanceTier,
		},
		"agentic_info": gin.H{
			"decision_reasoning": resp.Decision.Reasoning,
			"cost_estimate":      resp.CostUSD,
			"routing_decision":   resp.Decision,
		},
	}
	if resp.FallbackUsed {
		out["fallback_reason"] = resp.FallbackReason
	}
	c.JSON(http.StatusOK, out)
}

// MultimodalChat handles POST /api/multimodal-chat/chat.
func (h *Handlers) MultimodalChat(c *gin.Context) {
	resp, ok := h.chat(c)
	if !ok {
		return
	}
	out := gin.H{
		"success":          true,
		"response":         resp.Response,
		"model":            resp.ModelUsed,
		"provider":         resp.Provider,
		"variant":          resp.Variant,
		"fallback_used":    resp.FallbackUsed,
		"response_time_ms": resp.Latency.Milliseconds(),
		"usage": gin.H{
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
			"cost_usd":      resp.CostUSD,
		},
		"routing_decision": resp.Decision,
	}
	if resp.FallbackUsed {
		out["fallback_reason"] = resp.FallbackReason
	}
	c.JSON(http.StatusOK, out)
}

// ListModels handles GET /api/multimodal-chat/models.
func (h *Handlers) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "models": h.svc.Models()})
}

// AgenticStatus handles GET /api/mama-bear/agentic-status.
func (h *Handlers) AgenticStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// RouteChat handles POST /api/mama-bear/route. It reports the routing
// decision for a chat body under the current agentic mode without calling a
// provider.
func (h *Handlers) RouteChat(c *gin.Context) {
	var body ChatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		fail(c, http.StatusBadRequest, "Message is required")
		return
	}

	decision, analysis := h.svc.Route(express.ChatRequest{
		Message: body.Message,
		Mode:    body.Mode,
		Model:   body.Model,
		Context: body.Context,
	})
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"agentic_mode": h.svc.AgenticMode(),
		"decision":     decision,
		"analysis":     analysis,
	})
}

// ExportDecisions handles GET /api/mama-bear/decisions/export.
func (h *Handlers) ExportDecisions(c *gin.Context) {
	data, err := h.svc.ExportDecisions()
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="mama-bear-decisions.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// ConfigureAgenticRequest is the body of configure-agentic.
type ConfigureAgenticRequest struct {
	Mode string `json:"mode"`
}

// ConfigureAgentic handles POST /api/mama-bear/configure-agentic.
func (h *Handlers) ConfigureAgentic(c *gin.Context) {
	var body ConfigureAgenticRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if body.Mode == "" {
		body.Mode = string(express.AgenticFull)
	}

	cfg, err := h.svc.Configure(body.Mode)
	if errors.Is(err, express.ErrInvalidAgenticMode) {
		fail(c, http.StatusBadRequest, "Invalid mode. Use 'full', 'routing_only', or 'disabled'")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": cfg.Message,
		"configuration": gin.H{
			"mode":              cfg.Mode,
			"autonomous_mode":   cfg.AutonomousMode,
			"learning_enabled":  cfg.LearningEnabled,
			"cost_optimization": cfg.CostOptimization,
		},
	})
}
