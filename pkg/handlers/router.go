package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"halcyon-cms/pkg/config"
	"halcyon-cms/pkg/ctxlog"
	"halcyon-cms/pkg/services"
)

// NewRouter wires the API, and the login routes when GitHub OAuth is
// configured.
func NewRouter(cfg config.Config, templates *services.Templates, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Groups copy the engine middleware when created, so sessions go first.
	var guard []gin.HandlerFunc
	if cfg.AuthEnabled() {
		store := cookie.NewStore([]byte(cfg.SessionSecret))
		store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
		r.Use(sessions.Sessions("halcyon", store))

		auth := NewAuth(cfg.OAuth())
		auth.Register(r)
		guard = append(guard, auth.Required)
	}

	NewAPI(templates).Register(r.Group("/api", guard...))
	return r
}

// RequestLogger puts logger into each request context and logs the outcome.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With("method", c.Request.Method, "path", c.Request.URL.Path)
		c.Request = c.Request.WithContext(ctxlog.WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		reqLogger.Info("request",
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
