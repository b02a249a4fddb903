package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// MotionState is the negotiation status of a motion.
type MotionState string

const (
	// MotionProposed is a freshly proposed motion.
	MotionProposed MotionState = "proposed"
	// MotionUnderNegotiation is a motion that has been modified at least once.
	MotionUnderNegotiation MotionState = "under_negotiation"
	// MotionAgreed is an accepted motion. Terminal.
	MotionAgreed MotionState = "agreed"
	// MotionRejected is a rejected motion. Terminal.
	MotionRejected MotionState = "rejected"
)

// Terminal reports whether the motion can no longer be responded to.
func (s MotionState) Terminal() bool {
	return s == MotionAgreed || s == MotionRejected
}

// MotionAction is the kind of a negotiation history entry.
type MotionAction string

const (
	MotionActionProposed MotionAction = "proposed"
	MotionActionModified MotionAction = "modified"
	MotionActionAccepted MotionAction = "accepted"
	MotionActionRejected MotionAction = "rejected"
)

// RespondAction is what a responder does with a motion.
type RespondAction string

const (
	RespondAccept RespondAction = "accept"
	RespondModify RespondAction = "modify"
	RespondReject RespondAction = "reject"
)

// Valid returns true if the action is known.
func (a RespondAction) Valid() bool {
	return a == RespondAccept || a == RespondModify || a == RespondReject
}

// Motion bounds.
const (
	MotionTitleMinLen       = 10
	MotionTitleMaxLen       = 300
	MotionDescriptionMinLen = 50
	MotionDescriptionMaxLen = 2000
	MotionReasonMinLen      = 10
	MotionReasonMaxLen      = 500
)

// MotionChanges holds the fields a modification replaces.
type MotionChanges struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether no field is changed.
func (c *MotionChanges) Empty() bool {
	return c == nil || (c.Title == nil && c.Description == nil)
}

// NegotiationEntry is one append-only record of the motion's history.
type NegotiationEntry struct {
	Action    MotionAction   `json:"action"`
	UserID    string         `json:"user_id"`
	Changes   *MotionChanges `json:"changes,omitempty"`
	Reason    *string        `json:"reason,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Motion is the debate topic negotiated by the two room members.
type Motion struct {
	ID                 string             `json:"id"                          db:"id"`
	RoomID             string             `json:"room_id"                     db:"room_id"`
	Title              string             `json:"title"                       db:"title"`
	Description        string             `json:"description"                 db:"description"`
	ProposerID         string             `json:"proposer_id"                 db:"proposer_id"`
	Status             MotionState        `json:"status"                      db:"status"`
	NegotiationHistory []NegotiationEntry `json:"negotiation_history"         db:"negotiation_history"`
	AgreedAt           *time.Time         `json:"agreed_at,omitempty"         db:"agreed_at"`
	StaleNotifiedAt    *time.Time         `json:"stale_notified_at,omitempty" db:"stale_notified_at"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"        db:"deleted_at"`
	CreatedAt          time.Time          `json:"created_at"                  db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"                  db:"updated_at"`
}

// Clone returns a deep copy of the motion.
func (m *Motion) Clone() *Motion {
	if m == nil {
		return nil
	}
	c := *m
	c.NegotiationHistory = append([]NegotiationEntry(nil), m.NegotiationHistory...)
	c.AgreedAt = clonePtr(m.AgreedAt)
	c.StaleNotifiedAt = clonePtr(m.StaleNotifiedAt)
	c.DeletedAt = clonePtr(m.DeletedAt)
	return &c
}

// LastEntry returns the most recent history entry, if any.
func (m *Motion) LastEntry() *NegotiationEntry {
	if len(m.NegotiationHistory) == 0 {
		return nil
	}
	return &m.NegotiationHistory[len(m.NegotiationHistory)-1]
}

// ProposeMotionRequest proposes the motion for a room.
type ProposeMotionRequest struct {
	RoomID      string `json:"-"`
	ProposerID  string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Validate validates the request.
func (r *ProposeMotionRequest) Validate() error {
	if r.RoomID == "" {
		return apperrors.ValidationField("room_id", "room id is required")
	}
	if r.ProposerID == "" {
		return apperrors.ValidationField("proposer_id", "proposer id is required")
	}
	if err := ValidateMotionTitle(r.Title); err != nil {
		return err
	}
	return ValidateMotionDescription(r.Description)
}

// RespondMotionRequest responds to a motion.
type RespondMotionRequest struct {
	MotionID      string         `json:"-"`
	UserID        string         `json:"-"`
	Action        RespondAction  `json:"action"`
	Modifications *MotionChanges `json:"modifications,omitempty"`
	Reason        *string        `json:"reason,omitempty"`
}

// Validate checks the action and its payload requirements.
func (r *RespondMotionRequest) Validate() error {
	if !r.Action.Valid() {
		return apperrors.ValidationField("action", "action must be accept, modify or reject")
	}
	if r.Action == RespondModify {
		if r.Modifications.Empty() {
			return apperrors.ValidationField("modifications", "modify requires a title or description change")
		}
		if r.Modifications.Title != nil {
			if err := ValidateMotionTitle(*r.Modifications.Title); err != nil {
				return err
			}
		}
		if r.Modifications.Description != nil {
			if err := ValidateMotionDescription(*r.Modifications.Description); err != nil {
				return err
			}
		}
	}
	if r.Action == RespondModify || r.Action == RespondReject {
		if r.Reason == nil {
			return apperrors.ValidationField("reason", "reason is required")
		}
		if err := lengthBetween("reason", *r.Reason, MotionReasonMinLen, MotionReasonMaxLen); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMotionTitle checks the title bounds.
func ValidateMotionTitle(title string) error {
	return lengthBetween("title", title, MotionTitleMinLen, MotionTitleMaxLen)
}

// ValidateMotionDescription checks the description bounds.
func ValidateMotionDescription(desc string) error {
	return lengthBetween("description", desc, MotionDescriptionMinLen, MotionDescriptionMaxLen)
}

func lengthBetween(field, s string, lo, hi int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < lo || n > hi {
		return apperrors.ValidationField(field, fmt.Sprintf("%s must be %d-%d characters", field, lo, hi))
	}
	return nil
}
