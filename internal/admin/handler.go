// Package admin exposes cache management and score lookups over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/matching/cache"
	"advisor-match-engine/internal/matching/engine"
	"advisor-match-engine/internal/matching/persistence"
	"advisor-match-engine/internal/matching/strategy"
	"advisor-match-engine/internal/models"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// Engine is the part of *engine.Engine the admin API drives.
type Engine interface {
	CalculateScore(ctx context.Context, req engine.Request) (models.ScoreResult, error)
	Stats() cache.Stats
	ClearAll()
	Invalidate(ctx context.Context, entityID string) (int, error)
	Optimize(target int) int
	TopMatches(ctx context.Context, seekerID string, n int) ([]persistence.StoredScore, error)
	TopMatchesForProvider(ctx context.Context, providerID string, n int) ([]persistence.StoredScore, error)
}

// ProfileCache drops cached profile documents; optional.
type ProfileCache interface {
	Forget(ctx context.Context, id string) error
}

type StrategyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Handler struct {
	engine     Engine
	profiles   ProfileCache
	strategies []StrategyInfo
	logger     logger.Logger
	mux        *http.ServeMux
}

type Option func(*Handler)

func WithProfileCache(pc ProfileCache) Option {
	return func(h *Handler) { h.profiles = pc }
}

// WithStrategies lists the registered strategies on GET /strategies.
func WithStrategies(set *strategy.Set) Option {
	return func(h *Handler) {
		for _, name := range strategy.Names() {
			if st, err := set.Get(name); err == nil {
				h.strategies = append(h.strategies, StrategyInfo{Name: st.Name(), Description: st.Description()})
			}
		}
	}
}

func NewHandler(eng Engine, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		engine: eng,
		logger: log.WithFields(map[string]interface{}{"component": "admin"}),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET /admin/cache/stats", h.stats)
	h.mux.HandleFunc("POST /admin/cache/clear", h.clear)
	h.mux.HandleFunc("POST /admin/cache/invalidate", h.invalidate)
	h.mux.HandleFunc("POST /admin/cache/optimize", h.optimize)
	h.mux.HandleFunc("GET /scores", h.score)
	h.mux.HandleFunc("GET /matches/top", h.top)
	h.mux.HandleFunc("GET /strategies", h.listStrategies)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":                    st.Size,
		"hitRate":                 st.HitRate,
		"oldestEntryAgeSeconds":   st.OldestEntryAge.Seconds(),
		"frequentlyAccessedCount": st.FrequentlyAccessedCount,
		"hits":                    st.Hits,
		"misses":                  st.Misses,
		"evictions":               st.Evictions,
	})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "id is required")
		return
	}

	removed, err := h.engine.Invalidate(r.Context(), id)
	if err != nil {
		h.writeStandardError(w, err)
		return
	}
	if h.profiles != nil {
		if err := h.profiles.Forget(r.Context(), id); err != nil {
			h.logger.Warn("profile cache eviction failed", map[string]interface{}{"entityId": id, "error": err})
		}
	}

	h.logger.Info("entity invalidated", map[string]interface{}{"entityId": id, "removed": removed})
	writeJSON(w, http.StatusOK, map[string]interface{}{"entityId": id, "removed": removed})
}

func (h *Handler) optimize(w http.ResponseWriter, r *http.Request) {
	target, err := strconv.Atoi(r.URL.Query().Get("target"))
	if err != nil || target < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "target must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": h.engine.Optimize(target)})
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := engine.Request{
		ProviderID:  q.Get("providerId"),
		SeekerID:    q.Get("seekerId"),
		Strategy:    q.Get("strategy"),
		Preferences: models.DefaultPreferences(),
	}
	if raw := q.Get("preferences"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Preferences); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "preferences must be a JSON object")
			return
		}
	}

	res, err := h.engine.CalculateScore(r.Context(), req)
	if err != nil {
		h.writeStandardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) top(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultTopLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTopLimit)
	}

	var (
		scores []persistence.StoredScore
		err    error
	)
	switch {
	case q.Get("seekerId") != "":
		scores, err = h.engine.TopMatches(r.Context(), q.Get("seekerId"), limit)
	case q.Get("providerId") != "":
		scores, err = h.engine.TopMatchesForProvider(r.Context(), q.Get("providerId"), limit)
	default:
		writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "seekerId or providerId is required")
		return
	}

	if errors.Is(err, engine.ErrPersistenceDisabled) {
		writeError(w, http.StatusNotImplemented, "PERSISTENCE_DISABLED", err.Error())
		return
	}
	if err != nil {
		h.writeStandardError(w, err)
		return
	}
	if scores == nil {
		scores = []persistence.StoredScore{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": scores})
}

func (h *Handler) listStrategies(w http.ResponseWriter, r *http.Request) {
	out := h.strategies
	if out == nil {
		out = []StrategyInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"strategies": out})
}

func (h *Handler) writeStandardError(w http.ResponseWriter, err error) {
	stdErr := apperrors.AsStandardError(err)
	status := http.StatusInternalServerError
	switch apperrors.GetErrorCategory(stdErr.Code) {
	case "VALIDATION":
		status = http.StatusBadRequest
	case "PROFILES", "PERSISTENCE", "INFRASTRUCTURE", "CACHE":
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.logger.Error("request failed", map[string]interface{}{"code": stdErr.Code, "error": err})
	}
	writeJSON(w, status, stdErr)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
