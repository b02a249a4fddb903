// Package room holds the room status adjacency table.
package room

import (
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// transitions lists the legal next statuses of each room status. ai_processing may step
// back to arguments_submission only when a member cancels the debate before it starts.
var transitions = map[model.RoomStatus][]model.RoomStatus{
	model.RoomStatusWaitingParticipant: {
		model.RoomStatusAgendaNegotiation, model.RoomStatusCancelled,
	},
	model.RoomStatusAgendaNegotiation: {
		model.RoomStatusArgumentsSubmission, model.RoomStatusCancelled,
	},
	model.RoomStatusArgumentsSubmission: {
		model.RoomStatusAIProcessing, model.RoomStatusCancelled,
	},
	model.RoomStatusAIProcessing: {
		model.RoomStatusCompleted, model.RoomStatusCancelled, model.RoomStatusArgumentsSubmission,
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to model.RoomStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns InvalidTransition when from -> to is not legal.
func CheckTransition(from, to model.RoomStatus) error {
	if !CanTransition(from, to) {
		return apperrors.InvalidTransitionf("room cannot move from %s to %s", from, to)
	}
	return nil
}

// NextStatuses returns the statuses reachable from s.
func NextStatuses(s model.RoomStatus) []model.RoomStatus {
	return append([]model.RoomStatus(nil), transitions[s]...)
}
