package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/interfaces/middleware"
	"github.com/recruitflow/backend/pkg/auth"
)

// requestLogger logs one line per request at Info, or Warn for 5xx.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// NewRouter mounts every handler over the service manager.
func NewRouter(sm *services.ServiceManager, issuer *auth.TokenIssuer, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", middleware.RequireAuth(issuer))
	NewWorkflowHandler(sm.Workflows).Register(api)
	NewViewerHandler(sm.Viewers).Register(api)
	NewCandidateHandler(sm.Candidates, sm.Orchestration, sm.Executions).Register(api)
	NewExecutionHandler(sm.Executions).Register(api)

	callbacks := api.Group("/callbacks", middleware.RequireServiceRole())
	NewCallbackHandler(sm.Orchestration).Register(callbacks)

	return router
}
