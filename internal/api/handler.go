package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/history"
	"github.com/mapwatch/mapwatch/internal/snapshot"
)

// HistoryReader serves the alert audit log. history.Store satisfies it;
// a nil reader makes /api/v1/alerts return an empty list.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Handler is the HTTP handler for all /api/v1/* endpoints. It reads entity
// state from the snapshot store and the alert log from the history reader.
type Handler struct {
	snaps *snapshot.Store
	hist  HistoryReader
	mux   *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(snaps *snapshot.Store, hist HistoryReader) http.Handler {
	h := &Handler{snaps: snaps, hist: hist, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/entities", h.listEntities)
	h.mux.HandleFunc("/api/v1/entities/", h.getEntity) // subtree — extracts {id}
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health — severity counts and the worst state
// among live entities.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.snaps.List()
	resp := HealthResponse{EntityCount: len(entries)}

	if len(entries) == 0 {
		resp.State = string(classify.SeverityUnknown)
		jsonResp(w, http.StatusOK, resp)
		return
	}

	for _, e := range entries {
		switch e.Verdict.Severity {
		case classify.SeverityNormal:
			resp.NormalCount++
		case classify.SeverityWarning:
			resp.WarningCount++
		case classify.SeverityError:
			resp.ErrorCount++
		default:
			resp.UnknownCount++
		}
	}

	switch {
	case resp.ErrorCount > 0:
		resp.State = string(classify.SeverityError)
	case resp.WarningCount > 0:
		resp.State = string(classify.SeverityWarning)
	case resp.UnknownCount > 0:
		resp.State = string(classify.SeverityUnknown)
	default:
		resp.State = string(classify.SeverityNormal)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listEntities returns GET /api/v1/entities — all live entities.
func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jsonResp(w, http.StatusOK, BuildEntities(h.snaps))
}

// getEntity returns GET /api/v1/entities/{id} — a single live entity.
func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/entities/")
	if id == "" {
		h.listEntities(w, r)
		return
	}

	e, ok := h.snaps.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "entity not found")
		return
	}
	// Stale entries are treated as not found.
	if time.Since(e.UpdatedAt) > h.snaps.TTL() {
		jsonErr(w, http.StatusNotFound, "entity not found")
		return
	}

	jsonResp(w, http.StatusOK, toEntityResponse(e))
}

// alerts returns GET /api/v1/alerts — the most recent fired alerts,
// newest first. Accepts an optional ?limit= parameter.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.hist == nil {
		jsonResp(w, http.StatusOK, []history.Record{})
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	recs, err := h.hist.Recent(r.Context(), limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	jsonResp(w, http.StatusOK, recs)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// BuildEntities returns the JSON representation of all live entities.
// Shared with the websocket hub so both surfaces emit the same shape.
func BuildEntities(snaps *snapshot.Store) []EntityResponse {
	entries := snaps.List()
	out := make([]EntityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntityResponse(e))
	}
	return out
}

func toEntityResponse(e snapshot.Entry) EntityResponse {
	return EntityResponse{
		EntityID:     e.EntityID,
		DisplayName:  e.DisplayName,
		DashboardURL: e.DashboardURL,
		Severity:     string(e.Verdict.Severity),
		Summary:      e.Verdict.Summary,
		ErrorCount:   e.Verdict.ErrorCount,
		WarningCount: e.Verdict.WarningCount,
		OKCount:      e.Verdict.OKCount,
		ObservedAt:   e.Verdict.ObservedAt.UTC().Format(time.RFC3339),
		LastSeen:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
