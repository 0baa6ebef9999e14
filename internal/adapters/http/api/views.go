// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// viewRequest mirrors the wire schema for POST /views.
type viewRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	CustomerID string `json:"customer_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Area       string `json:"area"`
	ViewedAt   string `json:"viewed_at,omitempty"`
}

func (v viewRequest) validate() error {
	switch {
	case !types.EntityType(strings.TrimSpace(v.EntityType)).Valid():
		return errors.New("entity_type must be shop or cast")
	case strings.TrimSpace(v.EntityID) == "":
		return errors.New("missing entity_id")
	case strings.TrimSpace(v.Area) == "":
		return errors.New("missing area")
	}
	if v.ViewedAt != "" {
		if _, err := time.Parse(time.RFC3339, v.ViewedAt); err != nil {
			return errors.New("invalid viewed_at; must be RFC3339")
		}
	}
	return nil
}

// toEvent builds the domain event. The ingest id is assigned downstream.
func (v viewRequest) toEvent(r *http.Request) model.ViewEvent {
	viewedAt := time.Now()
	if v.ViewedAt != "" {
		if ts, err := time.Parse(time.RFC3339, v.ViewedAt); err == nil {
			viewedAt = ts
		}
	}
	return model.ViewEvent{
		EntityType: types.EntityType(v.EntityType),
		EntityID:   v.EntityID,
		ViewerKey:  model.ViewerKey{CustomerID: v.CustomerID, SessionID: v.SessionID},
		Area:       v.Area,
		ViewedAt:   viewedAt,
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

// ViewsHandler handles page-view ingestion requests.
type ViewsHandler struct {
	deps ViewIngestor
}

// NewViewsHandler creates a new views handler.
func NewViewsHandler(deps ViewIngestor) *ViewsHandler {
	return &ViewsHandler{deps: deps}
}

// HandlePostView handles POST /views requests.
func (h *ViewsHandler) HandlePostView(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_view"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if ok := h.deps.RecordView(r.Context(), req.toEvent(r)); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
