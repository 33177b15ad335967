package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/pkg/slogx"
	"github.com/materialdesk/apiserver/types"
)

// DropdownHandler provides HTTP handlers for the vocabulary admin screen.
type DropdownHandler struct {
	dropdownService *services.DropdownService
}

func NewDropdownHandler(dropdownService *services.DropdownService) *DropdownHandler {
	return &DropdownHandler{dropdownService: dropdownService}
}

// DropdownRouter registers dropdown routes on the given router. The
// caller mounts it behind the auth middleware.
func DropdownRouter(r chi.Router, dropdownService *services.DropdownService) {
	handler := NewDropdownHandler(dropdownService)

	r.Post("/", handler.Create)
	r.Get("/all/options", handler.Options)
	// Per-id endpoints are registered flat rather than via a subrouter:
	// mounting a subrouter at /{dropdownID} would claim every method on
	// the shared wildcard segment and shadow GET /{type}.
	r.Get("/{type}", handler.ListByType)
	r.Put("/{dropdownID}", handler.Update)
	r.Put("/{dropdownID}/toggle", handler.Toggle)
	r.Delete("/{dropdownID}", handler.SoftDelete)
	r.Delete("/{dropdownID}/permanent", handler.HardDelete)
}

func (h *DropdownHandler) ListByType(w http.ResponseWriter, r *http.Request) {
	dropdownType := chi.URLParam(r, "type")
	// Default true; inactive rows are included only on explicit request.
	activeOnly := r.URL.Query().Get("activeOnly") != "false"

	dropdowns, err := h.dropdownService.ListByType(r.Context(), dropdownType, activeOnly)
	if err != nil {
		respondServiceError(w, err, "dropdown", "failed to fetch dropdowns")
		return
	}

	writeJSON(w, http.StatusOK, dropdowns)
}

// Options returns the active entries of both vocabularies for the
// material form.
func (h *DropdownHandler) Options(w http.ResponseWriter, r *http.Request) {
	divisions, placements, err := h.dropdownService.Options(r.Context())
	if err != nil {
		respondServiceError(w, err, "dropdown", "failed to fetch dropdowns")
		return
	}

	writeJSON(w, http.StatusOK, DropdownOptionsResponse{
		Divisions:  divisions,
		Placements: placements,
	})
}

func (h *DropdownHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDropdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.Label) == "" {
		writeError(w, http.StatusBadRequest, "please provide type and label")
		return
	}

	dropdown, err := h.dropdownService.Create(r.Context(), req.Type, req.Label, req.Value)
	if err != nil {
		respondServiceError(w, err, "dropdown", "failed to create dropdown")
		return
	}

	writeJSON(w, http.StatusCreated, DropdownResponse{Success: true, Dropdown: dropdown})
}

func (h *DropdownHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "dropdownID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateDropdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	dropdown, err := h.dropdownService.Update(r.Context(), id, types.DropdownPatch{
		Label:    req.Label,
		Value:    req.Value,
		IsActive: req.IsActive,
	})
	if err != nil {
		respondServiceError(w, err, "dropdown", "failed to update dropdown")
		return
	}

	writeJSON(w, http.StatusOK, DropdownResponse{Success: true, Dropdown: dropdown})
}

func (h *DropdownHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "dropdownID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dropdown, err := h.dropdownService.ToggleActive(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "dropdown", "failed to toggle dropdown status")
		return
	}

	writeJSON(w, http.StatusOK, DropdownResponse{Success: true, Dropdown: dropdown})
}

// SoftDelete deactivates the dropdown without removing it; historic
// material references keep resolving.
func (h *DropdownHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "dropdownID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dropdown, err := h.dropdownService.SoftDelete(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "dropdown", "failed to deactivate dropdown")
		return
	}

	writeJSON(w, http.StatusOK, DropdownResponse{Success: true, Dropdown: dropdown})
}

// HardDelete permanently removes an inactive, unused dropdown.
func (h *DropdownHandler) HardDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "dropdownID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.dropdownService.HardDelete(r.Context(), id); err != nil {
		respondServiceError(w, err, "dropdown", "failed to permanently delete dropdown")
		return
	}

	if userID, err := userIDFromContext(r.Context()); err == nil {
		slogx.FromContext(r.Context()).Info("dropdown permanently deleted", "dropdown_id", id, "user_id", userID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "dropdown permanently deleted",
	})
}

type CreateDropdownRequest struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	// Value is optional; when omitted it is derived from the label.
	Value string `json:"value"`
}

type UpdateDropdownRequest struct {
	Label    *string `json:"label"`
	Value    *string `json:"value"`
	IsActive *bool   `json:"isActive"`
}

type DropdownResponse struct {
	Success  bool           `json:"success"`
	Dropdown types.Dropdown `json:"dropdown"`
}

type DropdownOptionsResponse struct {
	Divisions  []types.Dropdown `json:"divisions"`
	Placements []types.Dropdown `json:"placements"`
}
