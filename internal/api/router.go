package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/autods/internal/workbench"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *workbench.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Use(h.withSession)
		r.Delete("/", h.EndSession)

		r.Get("/snapshots", h.ListSnapshots)
		r.Post("/snapshots", h.ImportSnapshot)
		r.Get("/snapshots/{id}", h.GetSnapshot)
		r.Get("/snapshots/{id}/download", h.DownloadSnapshot)
		r.Delete("/snapshots/{id}", h.DeleteSnapshot)
		r.Get("/latest/{base}", h.LatestSnapshot)

		r.Get("/active", h.GetActive)
		r.Put("/active", h.SetActive)
		r.Post("/active/transform", h.Transform)

		r.Get("/actions", h.Actions)
		r.Get("/nav", h.Nav)
		r.Post("/nav/{move}", h.Navigate)
		r.Post("/chat", h.Chat)
		r.Post("/insight", h.Insight)
	})

	r.Post("/query/{id}", h.Query)
	r.Get("/datasets", h.Datasets)
	r.Get("/datasets/{base}", h.Versions)
	r.Get("/search", h.Search)
	r.Get("/transforms", h.Transforms)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
