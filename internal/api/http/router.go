package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MaysHroub/cst-management-info-system/internal/api/http/handlers"
	"github.com/MaysHroub/cst-management-info-system/internal/auth"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requests       *handlers.RequestsHandler
	Agents         *handlers.AgentsHandler
	Zones          *handlers.ZonesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	staffOnly := auth.RequireActor(domain.ActorStaff)
	fieldWork := auth.RequireActor(domain.ActorStaff, domain.ActorAgent)

	requests := app.Group("/requests", cfg.AuthMiddleware.Handle)
	requests.Post("/", cfg.Requests.Create)
	requests.Get("/", cfg.Requests.List)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Patch("/:id/transition", staffOnly, cfg.Requests.Transition)
	requests.Post("/:id/triage", staffOnly, cfg.Requests.Triage)
	requests.Post("/:id/comments", cfg.Requests.AddComment)
	requests.Post("/:id/rating", auth.RequireActor(domain.ActorCitizen), cfg.Requests.Rate)
	requests.Patch("/:id/milestone", fieldWork, cfg.Requests.AddMilestone)
	requests.Post("/:id/escalate", cfg.Requests.Escalate)
	requests.Get("/:id/sla", cfg.Requests.SLA)
	requests.Get("/:id/events", cfg.Requests.Events)

	agents := app.Group("/agents", cfg.AuthMiddleware.Handle)
	agents.Post("/", staffOnly, cfg.Agents.Create)
	agents.Get("/", cfg.Agents.List)
	agents.Post("/assign-request/:id", staffOnly, cfg.Agents.Assign)
	agents.Get("/:code", cfg.Agents.Get)
	agents.Get("/:code/tasks", fieldWork, cfg.Agents.Tasks)
	agents.Patch("/:code", staffOnly, cfg.Agents.Update)

	app.Get("/zones", cfg.Zones.List)
}
