// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// AdminHandler handles operator job entry points. These endpoints are
// also the targets for external cron schedulers.
type AdminHandler struct {
	deps AdminOperations
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminOperations) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// finalizeRequest mirrors the wire schema for POST /admin/finalize.
// Omitted year/month default to the previous calendar month.
type finalizeRequest struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// HandleFinalize handles POST /admin/finalize requests.
func (h *AdminHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_finalize"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req finalizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Year == 0 && req.Month == 0 {
		prev := time.Now().AddDate(0, -1, 0)
		req.Year, req.Month = prev.Year(), int(prev.Month())
	}
	if req.Year < 2000 || req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	summary, err := h.deps.FinalizeMonth(r.Context(), req.Year, req.Month)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// overrideRequest mirrors the wire schema for POST /admin/override.
type overrideRequest struct {
	ScoreID string `json:"score_id"`
	NewRank int    `json:"new_rank"`
	Reason  string `json:"reason"`
	Actor   string `json:"actor"`
}

func (o overrideRequest) validate() error {
	switch {
	case strings.TrimSpace(o.ScoreID) == "":
		return errors.New("missing score_id")
	case o.NewRank < 1:
		return errors.New("new_rank must be positive")
	case strings.TrimSpace(o.Reason) == "":
		return errors.New("missing reason")
	case strings.TrimSpace(o.Actor) == "":
		return errors.New("missing actor")
	}
	return nil
}

// HandleOverride handles POST /admin/override requests.
func (h *AdminHandler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_override"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.OverrideRank(r.Context(), req.ScoreID, req.NewRank, req.Reason, req.Actor); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "overridden"})
}

// disqualifyRequest mirrors the wire schema for POST /admin/disqualify.
type disqualifyRequest struct {
	ScoreID string `json:"score_id"`
	Reason  string `json:"reason"`
	Actor   string `json:"actor"`
}

func (d disqualifyRequest) validate() error {
	switch {
	case strings.TrimSpace(d.ScoreID) == "":
		return errors.New("missing score_id")
	case strings.TrimSpace(d.Reason) == "":
		return errors.New("missing reason")
	case strings.TrimSpace(d.Actor) == "":
		return errors.New("missing actor")
	}
	return nil
}

// HandleDisqualify handles POST /admin/disqualify requests.
func (h *AdminHandler) HandleDisqualify(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_disqualify"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req disqualifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.Disqualify(r.Context(), req.ScoreID, req.Reason, req.Actor); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "disqualified"})
}

// HandleSyncPlans handles POST /admin/sync-plans requests.
func (h *AdminHandler) HandleSyncPlans(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_sync_plans"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	summary, err := h.deps.SyncPlanEntitlements(r.Context())
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleRecomputeTrending handles POST /admin/trending/recompute requests.
func (h *AdminHandler) HandleRecomputeTrending(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_trending_recompute"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	summary, err := h.deps.RecomputeTrending(r.Context())
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decodeBody tolerates an empty body for endpoints whose parameters are
// all optional.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
