package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seedround/noteledger/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/maturing", h.ListMaturing)
	r.Get("/notes/{id}", h.GetNote)

	// Interest.
	r.Get("/notes/{id}/interest", h.GetInterest)
	r.Post("/notes/{id}/accruals", h.PostAccrual)

	// Conversion.
	r.Get("/notes/{id}/conversion", h.PreviewConversion)
	r.Post("/notes/{id}/conversion", h.Convert)

	// Lifecycle.
	r.Post("/notes/{id}/repayment", h.Repay)
	r.Post("/notes/{id}/default", h.MarkDefaulted)
	r.Post("/notes/{id}/financing-events", h.RecordFinancing)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
