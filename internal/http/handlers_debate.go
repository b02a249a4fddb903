package httpx

import (
	"log/slog"
	"net/http"

	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/service"
)

// DebateHandlers serves the worker routes that record the debate transcript.
type DebateHandlers struct {
	Debates *service.DebateService
	Logger  *slog.Logger
}

type startRoundRequest struct {
	RoundNumber int `json:"round_number"`
}

// StartRound handles POST /api/rooms/{id}/rounds.
func (h *DebateHandlers) StartRound(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req startRoundRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	round, err := h.Debates.StartRound(r.Context(), roomID, req.RoundNumber)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, round)
}

// RecordTurn handles POST /api/rounds/{id}/turns.
func (h *DebateHandlers) RecordTurn(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req model.RecordTurnRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.RoundID = roundID

	turn, err := h.Debates.RecordTurn(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, turn)
}

// CompleteRound handles POST /api/rounds/{id}/complete.
func (h *DebateHandlers) CompleteRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	round, err := h.Debates.CompleteRound(r.Context(), roundID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, round)
}
