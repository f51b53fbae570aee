package http

import (
	"context"
	"net/http"
	"time"

	"camwatch/internal/infrastructure/monitoring"
	"camwatch/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
)

// SessionRegistry reports the live streaming sessions.
type SessionRegistry interface {
	ActiveSessions() int
	Sessions() []signal.SessionInfo
}

type HealthHandler struct {
	checker  *monitoring.HealthChecker
	sessions SessionRegistry
	started  time.Time
}

func NewHealthHandler(checker *monitoring.HealthChecker, sessions SessionRegistry) *HealthHandler {
	return &HealthHandler{
		checker:  checker,
		sessions: sessions,
		started:  time.Now(),
	}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// SetupAdminRoutes registers the session listing on an authenticated group.
func (h *HealthHandler) SetupAdminRoutes(api *gin.RouterGroup) {
	api.GET("/sessions", h.ListSessions)
}

// Health is a liveness probe; it never touches dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"active_sessions": h.sessions.ActiveSessions(),
		"uptime":          int64(time.Since(h.started).Seconds()),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := h.checker.CheckAll(ctx)
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *HealthHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.Sessions()})
}
