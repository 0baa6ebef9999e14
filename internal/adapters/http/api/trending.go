// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"

	"github.com/yorunavi/engine/internal/domain/trending"
	"github.com/yorunavi/engine/internal/domain/types"
)

// TrendingHandler handles short-window trending reads.
type TrendingHandler struct {
	deps TrendingReader
}

// NewTrendingHandler creates a new trending handler.
func NewTrendingHandler(deps TrendingReader) *TrendingHandler {
	return &TrendingHandler{deps: deps}
}

// HandleGetTrending handles GET /trending?entity_type=&area=&limit= requests.
// Only the most recent materialized batch is served.
func (h *TrendingHandler) HandleGetTrending(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trending"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()

	entityType := types.EntityType(q.Get("entity_type"))
	if entityType == "" {
		entityType = types.EntityCast
	}
	if !entityType.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	area := q.Get("area")
	if area == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	limit := trending.DefaultTopPerArea
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 1 || n > trending.DefaultTopPerArea {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	entries, err := h.deps.GetTrending(r.Context(), entityType, area, limit)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	if entries == nil {
		entries = []types.TrendingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
