package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/internal/storage"
	"github.com/materialdesk/apiserver/internal/store"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func userIDFromContext(ctx context.Context) (int, error) {
	value := ctx.Value(contextSubjectKey)
	switch subject := value.(type) {
	case int:
		if subject < 1 {
			return 0, errors.New("invalid subject")
		}
		return subject, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(subject))
		if err != nil || parsed < 1 {
			return 0, errors.New("invalid subject")
		}
		return parsed, nil
	default:
		return 0, errors.New("missing subject")
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// respondServiceError maps the known store/service sentinels onto 4xx
// responses and everything unexpected onto a generic 500. resource names
// the entity for the not-found message; fallback is the generic failure
// message.
func respondServiceError(w http.ResponseWriter, err error, resource, fallback string) {
	var inUse *store.DropdownInUseError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, resource+" already exists")
	case errors.Is(err, store.ErrNoFields):
		writeError(w, http.StatusBadRequest, "no fields to update")
	case errors.Is(err, store.ErrDropdownActive):
		writeError(w, http.StatusBadRequest, "cannot permanently delete an active dropdown; deactivate it first")
	case errors.As(err, &inUse):
		writeError(w, http.StatusBadRequest,
			"cannot delete; still used by "+strconv.Itoa(inUse.Count)+" material(s)")
	case errors.Is(err, store.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, "division or placement does not exist")
	case errors.Is(err, services.ErrInvalidDropdownType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrTooManyImages):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrImageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrImageTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
