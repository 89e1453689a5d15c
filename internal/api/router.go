package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/app"
	"github.com/gatewarden/gatewarden/internal/handlers"
	"github.com/gatewarden/gatewarden/internal/middleware"
	"github.com/gatewarden/gatewarden/internal/services"
)

// Services bundles the long-lived services the router exposes.
type Services struct {
	Tickets      *services.TicketService
	Settings     *services.GuildSettingsService
	Actions      *services.ReviewLogService
	Reconciler   *services.ReconcilerService
	Applications *services.ApplicationService
	Claims       *services.ClaimService
	Decisions    *services.DecisionService
}

// NewRouter builds the Gin engine, wires middleware and registers the
// operational routes. The surface is read-mostly; moderation itself
// happens through the bot commands, not this API.
func NewRouter(db *gorm.DB, cfg *app.Config, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")

	if err := registerTicketRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerSettingsRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerActionRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerApplicationRoutes(api, svcs); err != nil {
		return nil, err
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
