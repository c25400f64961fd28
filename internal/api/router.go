package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/demanda/internal/index"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sync, if non-nil, backs POST /sync.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(db index.Reader, sync SyncFunc, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(db, sync)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Input files.
	r.Get("/sources", h.ListSources)
	r.Get("/sources/{name}", h.GetSource)
	r.Get("/failures", h.ListFailures)

	// Dataset.
	r.Get("/records", h.ListRecords)
	r.Get("/summary", h.Summary)
	r.Get("/profiles/{kind}", h.Profile)

	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
