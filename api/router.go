// Package api assembles the HTTP routes of the collaboration server.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/oro-os/backend/api/handlers"
	"github.com/oro-os/backend/api/middleware"
	"github.com/oro-os/backend/internal/ratelimit"
	"github.com/oro-os/backend/internal/ws"
)

// Deps are the services the router exposes. Audit and Limiter are optional.
type Deps struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	WS             *ws.Handler
	Assistant      handlers.Replier
	Audit          handlers.AuditLister
	Limiter        ratelimit.Limiter
	RateLimit      int
}

// NewRouter builds the Gin engine with every route mounted.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.AllowedOrigins))

	status := handlers.NewStatusHandler(deps.WS.Hub())
	r.GET("/health", status.Liveness)

	handlers.NewWebSocketHandler(deps.WS).RegisterRoutes(r)

	api := r.Group("/api")
	{
		status.RegisterRoutes(api)

		var assistantMW []gin.HandlerFunc
		if deps.Limiter != nil {
			assistantMW = append(assistantMW, middleware.RateLimit(deps.Limiter, deps.RateLimit, deps.Logger))
		}
		handlers.NewAssistantHandler(deps.Assistant).RegisterRoutes(api, assistantMW...)

		handlers.NewAuditHandler(deps.Audit).RegisterRoutes(api)
	}

	return r
}
