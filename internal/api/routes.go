package api

import (
	"net/http"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/middleware"
	"github.com/Gemini-Podplai/mumabear/pkg/cache"
	"github.com/gin-gonic/gin"
)

// RouterConfig configures the middleware stack around the handlers.
type RouterConfig struct {
	AdminAPIKey    string
	ChatAPIKey     string
	AllowedOrigins []string
	RateLimit      int64
	Cache          *cache.Cache
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.Logging(), middleware.CORS(cfg.AllowedOrigins))

	r.GET("/health", h.HealthCheck)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	chat := r.Group("/api",
		middleware.APIKeyAuth(cfg.ChatAPIKey, false),
		middleware.RateLimit(cfg.Cache, cfg.RateLimit, time.Minute),
	)
	{
		chat.POST("/mama-bear/express-chat", h.ExpressChat)
		chat.GET("/mama-bear/agentic-status", h.AgenticStatus)
		chat.POST("/mama-bear/configure-agentic", h.ConfigureAgentic)
		chat.POST("/mama-bear/route", h.RouteChat)
		chat.GET("/mama-bear/decisions/export", h.ExportDecisions)

		chat.POST("/multimodal-chat/chat", h.MultimodalChat)
		chat.GET("/multimodal-chat/models", h.ListModels)

		chat.POST("/sessions", h.CreateSession)
		chat.GET("/sessions", h.ListSessions)
		chat.GET("/sessions/:id", h.GetSession)
		chat.POST("/sessions/:id/join", h.JoinSession)
		chat.POST("/sessions/:id/leave", h.LeaveSession)
		chat.POST("/sessions/:id/takeover", h.TakeoverSession)
		chat.GET("/sessions/:id/events", h.SessionEvents)
	}

	// Fail-secure: without an admin key every management call is refused.
	v1 := r.Group("/api/v1", middleware.APIKeyAuth(cfg.AdminAPIKey, true))
	{
		v1.GET("/costs/summary", h.GetCostSummary)
		v1.GET("/costs/requests", h.GetRecentRequests)
		v1.GET("/budgets", h.ListBudgets)
		v1.POST("/budgets", h.CreateBudget)
		v1.GET("/budgets/:scope/:entity_id", h.GetBudget)
		v1.DELETE("/budgets/:scope/:entity_id/spend", h.ResetBudgetSpend)
		v1.GET("/insights", h.GetInsights)
		v1.GET("/report", h.GetReport)
	}

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "not found")
	})
	return r
}
