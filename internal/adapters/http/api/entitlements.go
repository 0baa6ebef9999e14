// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// entitlementResponse is the wire shape for a single grant.
type entitlementResponse struct {
	ID            string    `json:"id"`
	TargetType    string    `json:"target_type"`
	TargetID      string    `json:"target_id"`
	PlacementType string    `json:"placement_type"`
	Area          string    `json:"area,omitempty"`
	Priority      int       `json:"priority"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	SourceType    string    `json:"source_type"`
	SourceID      string    `json:"source_id,omitempty"`
	IsActive      bool      `json:"is_active"`
}

func toEntitlementResponses(grants []model.Entitlement) []entitlementResponse {
	out := make([]entitlementResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, entitlementResponse{
			ID:            g.ID,
			TargetType:    string(g.TargetType),
			TargetID:      g.TargetID,
			PlacementType: string(g.PlacementType),
			Area:          g.Area,
			Priority:      g.Priority,
			StartsAt:      g.StartsAt,
			EndsAt:        g.EndsAt,
			SourceType:    string(g.SourceType),
			SourceID:      g.SourceID,
			IsActive:      g.IsActive,
		})
	}
	return out
}

// EntitlementsHandler handles promotional grant reads.
type EntitlementsHandler struct {
	deps EntitlementReader
}

// NewEntitlementsHandler creates a new entitlements handler.
func NewEntitlementsHandler(deps EntitlementReader) *EntitlementsHandler {
	return &EntitlementsHandler{deps: deps}
}

// HandleGetEntitlements handles GET /entitlements requests. Two query
// modes: ?placement=&area= returns the grants currently effective for a
// slot in priority order; ?target_type=&target_id= returns every grant
// held by one entity.
func (h *EntitlementsHandler) HandleGetEntitlements(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entitlements"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()

	if targetID := q.Get("target_id"); targetID != "" {
		targetType := types.EntityType(q.Get("target_type"))
		if !targetType.Valid() {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		grants, err := h.deps.EntitlementsForTarget(r.Context(), targetType, targetID)
		if err != nil {
			writeDomainError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntitlementResponses(grants))
		return
	}

	placement := types.PlacementType(q.Get("placement"))
	if !placement.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	grants, err := h.deps.EffectiveEntitlements(r.Context(), placement, q.Get("area"))
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementResponses(grants))
}
