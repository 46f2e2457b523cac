package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/stockroom/internal/api"
	apiMiddleware "github.com/phrazzld/stockroom/internal/api/middleware"
)

// bypassPaths skip rate limiting. Entries ending in "/" match as prefixes.
var bypassPaths = []string{"/health", "/docs", "/auth/login", "/auth/guest-login", "/ws/"}

// setupRouter creates and configures the application router with all routes and middleware.
// chi's RealIP is deliberately absent: guest identity is the TCP peer address.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	if app.limiter != nil {
		r.Use(apiMiddleware.RateLimit(app.limiter, app.resolver, bypassPaths))
	}

	authHandler := api.NewAuthHandler(app.tokens, app.accounts)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.tokens, app.keys)
	taskHandler := api.NewTaskHandler(app.runner.Scheduler(), app.runner.Query(), app.registry)
	partHandler := api.NewPartHandler(app.parts)

	// Public endpoints
	r.Get("/health", api.Health)
	r.Get("/docs", api.Docs)
	r.Post("/auth/login", authHandler.Login)
	r.Post("/auth/guest-login", authHandler.GuestLogin)
	r.Get("/ws/tasks", app.hub.HandleTaskProgress)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/quick/{task_type}", taskHandler.CreateQuickTask)
			r.Get("/capabilities/providers", taskHandler.ListProviders)
			r.Get("/{id}", taskHandler.GetTask)
			r.Post("/{id}/cancel", taskHandler.CancelTask)
		})
		r.Get("/parts/{id}", partHandler.GetPart)
	})

	return r
}
