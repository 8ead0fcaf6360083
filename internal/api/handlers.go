package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/permitflow/internal/checksum"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/workflow"
)

const (
	msgStatusUpdated  = "Status updated successfully"
	msgDocumentAdded  = "Document added successfully"
	msgAppNotFound    = "Application not found"
	msgAppOrStepNotFound = "Application or step not found"
)

// Handler holds API route handlers.
type Handler struct {
	svc *workflow.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *workflow.Service) *Handler {
	return &Handler{svc: svc}
}

// ListApplications handles GET /api/applications.
//
//	@Summary		List applications in creation order
//	@Tags			applications
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive name filter"
//	@Success		200	{array}		ApplicationView
//	@Router			/applications [get]
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.ListApplications(r.Context(), workflow.ListFilter{Query: r.URL.Query().Get("q")})
	if err != nil {
		writeError(w, "list applications", msgAppNotFound, err)
		return
	}
	views := make([]ApplicationView, len(apps))
	for i := range apps {
		views[i] = newApplicationView(&apps[i])
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateApplication handles POST /api/applications.
//
//	@Summary		Open a new application with the 12 template steps
//	@Tags			applications
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateApplicationRequest	true	"Application to create"
//	@Success		201		{object}	ApplicationView
//	@Failure		400		{object}	errResponse
//	@Router			/applications [post]
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req CreateApplicationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	app, err := h.svc.CreateApplication(r.Context(), workflow.CreateApplicationInput{
		ApplicationName: req.ApplicationName,
	})
	if err != nil {
		writeError(w, "create application", msgAppNotFound, err,
			slog.String("name", req.ApplicationName))
		return
	}
	writeJSON(w, http.StatusCreated, newApplicationView(app))
}

// GetApplication handles GET /api/applications/{id}.
//
//	@Summary		Get one application
//	@Tags			applications
//	@Produce		json
//	@Param			id	path		string	true	"Application id"
//	@Param			If-None-Match	header	string	false	"ETag from a previous response"
//	@Success		200	{object}	ApplicationView
//	@Success		304	"Not modified"
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/applications/{id} [get]
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, err := h.svc.GetApplication(r.Context(), id)
	if err != nil {
		writeError(w, "get application", msgAppNotFound, err, slog.String("id", id))
		return
	}
	body, etag, err := checksum.JSON(newApplicationView(app))
	if err != nil {
		writeError(w, "get application", msgAppNotFound, err, slog.String("id", id))
		return
	}
	w.Header().Set("ETag", etag)
	if checksum.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// UpdateStepStatus handles PUT /api/applications/{id}.
//
//	@Summary		Set the status of one step
//	@Tags			applications
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Application id"
//	@Param			body	body		UpdateStepStatusRequest	true	"Step and new status"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/applications/{id} [put]
func (h *Handler) UpdateStepStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateStepStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.svc.UpdateStepStatus(r.Context(), workflow.UpdateStepStatusInput{
		ApplicationID: id,
		StepNumber:    req.StepNumber,
		Status:        req.NewStatus,
	})
	if err != nil {
		writeError(w, "update step status", msgAppOrStepNotFound, err,
			slog.String("id", id), slog.Int("step", req.StepNumber))
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgStatusUpdated})
}

// AppendDocument handles PUT /api/applications/{id}/documents.
//
//	@Summary		Attach a file name to one step
//	@Tags			applications
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Application id"
//	@Param			body	body		AppendDocumentRequest	true	"Step and file name"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/applications/{id}/documents [put]
func (h *Handler) AppendDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req AppendDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.svc.AppendDocument(r.Context(), workflow.AppendDocumentInput{
		ApplicationID: id,
		StepNumber:    req.StepNumber,
		FileName:      req.FileName,
	})
	if err != nil {
		writeError(w, "append document", msgAppOrStepNotFound, err,
			slog.String("id", id), slog.Int("step", req.StepNumber))
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgDocumentAdded})
}

// StepTemplate handles GET /api/steps/template.
//
//	@Summary		List the canonical 12-step workflow
//	@Tags			steps
//	@Produce		json
//	@Success		200	{array}	models.StepTemplate
//	@Router			/steps/template [get]
func (h *Handler) StepTemplate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Template)
}
