// Package motion implements the motion negotiation state machine.
//
// A motion is proposed by one room member and answered by the other. The proposer_id
// never changes; the negotiation history is the audit trail and the latest actor is
// derived from its last entry.
package motion

import (
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// StaleAfter is the idle period after which a non-terminal motion is flagged stale.
const StaleAfter = 72 * time.Hour

// Propose builds a new motion in the proposed state with its first history entry.
func Propose(req *model.ProposeMotionRequest, now time.Time) (*model.Motion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &model.Motion{
		RoomID:      req.RoomID,
		Title:       req.Title,
		Description: req.Description,
		ProposerID:  req.ProposerID,
		Status:      model.MotionProposed,
		NegotiationHistory: []model.NegotiationEntry{{
			Action:    model.MotionActionProposed,
			UserID:    req.ProposerID,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Respond applies an accept, modify or reject action by a non-proposer and appends
// exactly one history entry.
func Respond(m *model.Motion, req *model.RespondMotionRequest, now time.Time) error {
	if m.DeletedAt != nil {
		return apperrors.NotFoundf("motion %s not found", m.ID)
	}
	if req.UserID == m.ProposerID {
		return apperrors.Forbiddenf("the proposer cannot respond to their own motion")
	}
	if m.Status.Terminal() {
		return apperrors.Forbiddenf("motion is already %s", m.Status)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	entry := model.NegotiationEntry{UserID: req.UserID, Reason: req.Reason, Timestamp: now}
	switch req.Action {
	case model.RespondAccept:
		entry.Action = model.MotionActionAccepted
		m.Status = model.MotionAgreed
		m.AgreedAt = &now
	case model.RespondReject:
		entry.Action = model.MotionActionRejected
		m.Status = model.MotionRejected
	case model.RespondModify:
		entry.Action = model.MotionActionModified
		changes := *req.Modifications
		entry.Changes = &changes
		if changes.Title != nil {
			m.Title = *changes.Title
		}
		if changes.Description != nil {
			m.Description = *changes.Description
		}
		m.Status = model.MotionUnderNegotiation
	}
	m.NegotiationHistory = append(m.NegotiationHistory, entry)
	m.StaleNotifiedAt = nil
	m.UpdatedAt = now
	return nil
}

// Delete soft-deletes a rejected motion so the room can propose a new one.
func Delete(m *model.Motion, now time.Time) error {
	if m.DeletedAt != nil {
		return apperrors.NotFoundf("motion %s not found", m.ID)
	}
	if m.Status != model.MotionRejected {
		return apperrors.InvalidTransitionf("only a rejected motion can be deleted (status %s)", m.Status)
	}
	m.DeletedAt = &now
	m.UpdatedAt = now
	return nil
}

// LastActivity returns the time of the most recent history entry.
func LastActivity(m *model.Motion) time.Time {
	if e := m.LastEntry(); e != nil {
		return e.Timestamp
	}
	return m.UpdatedAt
}

// IsStale reports whether a non-terminal motion has been idle for at least StaleAfter.
func IsStale(m *model.Motion, now time.Time) bool {
	if m.Status.Terminal() || m.DeletedAt != nil {
		return false
	}
	return !now.Before(LastActivity(m).Add(StaleAfter))
}

// StatusView summarizes the motion for the room status view.
func StatusView(m *model.Motion, room *model.Room, now time.Time) *model.MotionStatus {
	v := &model.MotionStatus{ID: m.ID, Status: m.Status, IsStale: IsStale(m, now)}
	if e := m.LastEntry(); e != nil {
		v.LatestActor = e.UserID
		v.LatestAction = e.Action
	}
	if !m.Status.Terminal() && room != nil {
		switch {
		case room.CreatorID != m.ProposerID:
			v.AwaitingResponseFrom = room.CreatorID
		case room.ParticipantID != nil:
			v.AwaitingResponseFrom = *room.ParticipantID
		}
	}
	return v
}
