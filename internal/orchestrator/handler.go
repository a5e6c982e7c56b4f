package orchestrator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"motion-recorder/internal/platform/metrics"
)

const (
	defaultSessionsLimit = 20
	maxSessionsLimit     = 200
)

// Handler exposes the recorder's read-only ops endpoints using go-chi.
type Handler struct {
	repo    Repository
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler reading from repo. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(repo Repository, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{repo: repo, log: log, metrics: m}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, h.repo.Status())
}

// Sessions handles GET /sessions?limit=N, newest first.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultSessionsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.log.Debug("invalid sessions limit", slog.String("limit", s))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit = min(n, maxSessionsLimit)
	}

	recs, err := h.repo.RecentSessions(limit)
	if err != nil {
		h.log.Error("list sessions failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []SessionRecord{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}
