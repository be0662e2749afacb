// Package api exposes the triage service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Bhavesh398/prioritygate/internal/scoring"
	"github.com/Bhavesh398/prioritygate/internal/triage"
)

// Triage is the slice of the triage service the handlers need.
type Triage interface {
	Rank(complaints []scoring.Complaint) []triage.Ranked
	AnalyzeBatch(ctx context.Context, complaints []scoring.Complaint) ([]triage.Analysis, error)
	ActionPlan(ctx context.Context, complaints []scoring.Complaint) (string, error)
	Insights(ctx context.Context, texts []string) (string, error)
}

type Handler struct {
	svc Triage
	log zerolog.Logger
}

func NewHandler(svc Triage, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "api").Logger()}
}

// Register mounts all triage routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/complaints/rank", h.rank)
	mux.HandleFunc("/v1/complaints/analyze", h.analyze)
	mux.HandleFunc("/v1/complaints/action-plan", h.actionPlan)
	mux.HandleFunc("/v1/complaints/insights", h.insights)
}

type complaintsRequest struct {
	Complaints []scoring.Complaint `json:"complaints"`
}

type insightsRequest struct {
	Texts []string `json:"texts"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON request body")
		return false
	}
	return true
}

func (h *Handler) rank(w http.ResponseWriter, r *http.Request) {
	var req complaintsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Complaints) == 0 {
		writeError(w, http.StatusBadRequest, "empty_batch", "no complaints supplied")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"complaints": h.svc.Rank(req.Complaints),
	})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req complaintsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Complaints) == 0 {
		writeError(w, http.StatusBadRequest, "empty_batch", "no complaints supplied")
		return
	}
	analyses, err := h.svc.AnalyzeBatch(r.Context(), req.Complaints)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": analyses,
	})
}

func (h *Handler) actionPlan(w http.ResponseWriter, r *http.Request) {
	var req complaintsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Complaints) == 0 {
		writeError(w, http.StatusBadRequest, "empty_batch", "no complaints supplied")
		return
	}
	plan, err := h.svc.ActionPlan(r.Context(), req.Complaints)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action_plan": plan,
	})
}

func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "empty_batch", "no complaint texts supplied")
		return
	}
	out, err := h.svc.Insights(r.Context(), req.Texts)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"insights": out,
	})
}

func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "timeout", "request cancelled before the AI backend answered")
		return
	}
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg("upstream call failed")
	writeError(w, http.StatusBadGateway, "upstream_error", "AI backend call failed")
}
