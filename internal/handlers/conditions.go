package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"alertcache/internal/cache"
)

// Loader replaces the cached condition set
type Loader interface {
	Load(ctx context.Context, conds []cache.Condition, policy cache.LoadPolicy) (cache.LoadResult, error)
}

// ConditionsHandler serves PUT /conditions. The body is the complete
// condition set; conditions missing from it are dropped from the cache.
type ConditionsHandler struct {
	loader      Loader
	policy      cache.LoadPolicy
	maxBodySize int64
}

// ConditionsConfig holds configuration for the conditions handler
type ConditionsConfig struct {
	Loader      Loader
	Policy      cache.LoadPolicy
	MaxBodySize int64
}

func NewConditionsHandler(cfg ConditionsConfig) *ConditionsHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 10 * 1024 * 1024
	}
	return &ConditionsHandler{
		loader:      cfg.Loader,
		policy:      cfg.Policy,
		maxBodySize: maxBodySize,
	}
}

// ConditionsRequest wraps the condition set. A bare array is accepted too.
type ConditionsRequest struct {
	Conditions []cache.Condition `json:"conditions"`
	// Policy overrides the configured load policy: "skip" or "abort"
	Policy string `json:"policy,omitempty"`
}

func (h *ConditionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ConditionsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	raw := json.RawMessage{}
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := json.Unmarshal(raw, &req.Conditions); err != nil {
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	policy := h.policy
	if req.Policy != "" {
		p, err := cache.ParseLoadPolicy(req.Policy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		policy = p
	}

	result, err := h.loader.Load(r.Context(), req.Conditions, policy)
	switch {
	case errors.Is(err, cache.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
