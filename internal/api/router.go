package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/permitflow/internal/workflow"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *workflow.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Applications.
	r.Get("/applications", h.ListApplications)
	r.Post("/applications", h.CreateApplication)
	r.Get("/applications/{id}", h.GetApplication)
	r.Put("/applications/{id}", h.UpdateStepStatus)
	r.Put("/applications/{id}/documents", h.AppendDocument)

	// Step template.
	r.Get("/steps/template", h.StepTemplate)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
