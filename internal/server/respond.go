package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zivalx/dAIgest/internal/engine"
	"github.com/zivalx/dAIgest/internal/ports"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, ports.ErrStatusConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
