package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createCycle creates a cycle and runs it to a terminal state before
// responding. The response body is always a finished cycle.
func (h *Handler) createCycle(w http.ResponseWriter, r *http.Request) {
	var req domain.CycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cycle, err := h.engine.CreateAndRun(r.Context(), req)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, cycle)
}

func (h *Handler) listCycles(w http.ResponseWriter, r *http.Request) {
	filter := ports.CycleFilter{
		Status:   domain.CycleStatus(r.URL.Query().Get("status")),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}

	cycles, total, err := h.engine.ListCycles(r.Context(), filter)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cycles":    cycles,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (h *Handler) getCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	detail, err := h.engine.GetCycle(r.Context(), id)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) deleteCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.engine.DeleteCycle(r.Context(), id); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) failCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Reason == "" {
		body.Reason = "marked failed by operator"
	}

	if err := h.engine.FailCycle(r.Context(), id, body.Reason); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type configPayload struct {
	Name          string         `json:"name"`
	SourceType    string         `json:"source_type"`
	CredentialRef string         `json:"credential_ref"`
	CollectSpec   map[string]any `json:"collect_spec"`
	Enabled       *bool          `json:"enabled"`
}

func (p configPayload) validate() string {
	if p.Name == "" {
		return "name is required"
	}
	if p.SourceType == "" {
		return "source_type is required"
	}
	return ""
}

func (h *Handler) createConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	now := time.Now().UTC()
	cfg := &domain.SourceConfig{
		ID:            uuid.New(),
		Name:          payload.Name,
		SourceType:    payload.SourceType,
		CredentialRef: payload.CredentialRef,
		CollectSpec:   payload.CollectSpec,
		Enabled:       enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.configs.Create(r.Context(), cfg); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) listConfigs(w http.ResponseWriter, r *http.Request) {
	var enabled *bool
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "enabled must be a boolean")
			return
		}
		enabled = &v
	}

	configs, err := h.configs.List(r.Context(), r.URL.Query().Get("source_type"), enabled)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cfg, err := h.configs.Get(r.Context(), id)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cfg, err := h.configs.Get(r.Context(), id)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	cfg.Name = payload.Name
	cfg.SourceType = payload.SourceType
	cfg.CredentialRef = payload.CredentialRef
	cfg.CollectSpec = payload.CollectSpec
	if payload.Enabled != nil {
		cfg.Enabled = *payload.Enabled
	}

	if err := h.configs.Update(r.Context(), cfg); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) deleteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.configs.Delete(r.Context(), id); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
