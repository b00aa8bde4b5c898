package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/saved"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/service"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/validation"
)

type savedRequest struct {
	Name string `json:"name" validate:"required"`
}

type savedResponse struct {
	Locations []string `json:"locations"`
	Max       int      `json:"max"`
}

// GetSaved handles GET /api/saved.
func (h *Handler) GetSaved(w http.ResponseWriter, r *http.Request) {
	list, err := h.saved.List(r.Context(), userFromContext(r.Context()))
	h.writeSaved(w, r, "list", http.StatusOK, list, err)
}

// PostSaved handles POST /api/saved with body {"name": "..."}.
func (h *Handler) PostSaved(w http.ResponseWriter, r *http.Request) {
	var req savedRequest
	err := decodeJSON(w, r, &req)
	if err == nil {
		err = validation.Struct(req)
	}
	if err == nil {
		req.Name, err = validation.ValidateLocation(req.Name, service.MinLocationLength, service.MaxLocationLength)
	}
	if err != nil {
		observability.SavedLocationOpsTotal.WithLabelValues("add", "invalid").Inc()
		writeServiceError(w, r, err)
		return
	}
	list, err := h.saved.Add(r.Context(), userFromContext(r.Context()), req.Name)
	h.writeSaved(w, r, "add", http.StatusCreated, list, err)
}

// DeleteSaved handles DELETE /api/saved/{name}.
func (h *Handler) DeleteSaved(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(mux.Vars(r)["name"])
	list, err := h.saved.Remove(r.Context(), userFromContext(r.Context()), name)
	h.writeSaved(w, r, "remove", http.StatusOK, list, err)
}

func (h *Handler) writeSaved(w http.ResponseWriter, r *http.Request, op string, status int, list []string, err error) {
	if err != nil {
		observability.SavedLocationOpsTotal.WithLabelValues(op, savedResult(err)).Inc()
		writeServiceError(w, r, err)
		return
	}
	observability.SavedLocationOpsTotal.WithLabelValues(op, "success").Inc()
	if list == nil {
		list = []string{}
	}
	writeJSON(w, status, savedResponse{Locations: list, Max: saved.MaxLocations})
}

func savedResult(err error) string {
	switch {
	case errors.Is(err, saved.ErrLimitReached):
		return "limit_reached"
	case errors.Is(err, saved.ErrAlreadySaved):
		return "already_saved"
	case errors.Is(err, saved.ErrNotFound):
		return "not_found"
	default:
		return string(upstream.CategorizeError(err))
	}
}
