package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/explore"
	"github.com/starford/autods/internal/transform"
	"github.com/starford/autods/internal/workbench"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Hint  string `json:"hint,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps service errors to status codes. Unknown errors are logged
// under op and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	var terr *transform.Error
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, workbench.ErrNoActiveDataset):
		writeJSON(w, http.StatusConflict, errResponse{Error: err.Error(), Hint: workbench.NoActiveDatasetHint})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(terr.Error()))
	case errors.Is(err, explore.ErrNotReadOnly):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
