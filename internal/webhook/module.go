// Package webhook module wiring and route registration.
package webhook

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"trafficops_backend/internal/events"
	apphttp "trafficops_backend/internal/http"
	"trafficops_backend/internal/referral"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, pipelines config.PipelineConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(
		tracking.New(pool),
		referral.New(pool),
		repo,
		eventBus,
		pipelines,
		log,
	)
	handler := NewHandler(service, repo, val, log)

	return &Module{handler: handler, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// Service exposes the processing pipeline for other entry points.
func (m *Module) Service() *Service {
	return m.handler.service
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public CRM endpoint; the CRM cannot send auth headers.
	ctx.V1.POST("/webhook/amocrm", m.handler.HandleAmoCRMWebhook)
	ctx.V1.GET("/webhook/amocrm", m.handler.HandleWebhookTest)

	// Admin audit access (bearer token).
	logs := ctx.Admin.Group("/webhook/logs")
	logs.GET("", m.handler.HandleListLogs)
	logs.GET("/stats", m.handler.HandleLogStats)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
