package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// JobPayload is the typed payload of one job type.
type JobPayload interface {
	JobType() JobType
	Room() string
	Validate() error
}

// DebateJobPayload starts the three-round debate for a room.
type DebateJobPayload struct {
	RoomID            string `json:"room_id"`
	MotionTitle       string `json:"motion_title"`
	MotionDescription string `json:"motion_description"`
	ArgumentA         string `json:"argument_a"`
	ArgumentB         string `json:"argument_b"`
}

func (p *DebateJobPayload) JobType() JobType { return JobTypeDebate }
func (p *DebateJobPayload) Room() string     { return p.RoomID }

func (p *DebateJobPayload) Validate() error {
	if p.RoomID == "" {
		return apperrors.ValidationField("payload.room_id", "room id is required")
	}
	if p.MotionTitle == "" {
		return apperrors.ValidationField("payload.motion_title", "motion title is required")
	}
	if p.ArgumentA == "" || p.ArgumentB == "" {
		return apperrors.ValidationField("payload.argument", "both arguments are required")
	}
	return nil
}

// JudgeJobPayload requests the judge decision for a room.
type JudgeJobPayload struct {
	RoomID string `json:"room_id"`
}

func (p *JudgeJobPayload) JobType() JobType { return JobTypeJudge }
func (p *JudgeJobPayload) Room() string     { return p.RoomID }

func (p *JudgeJobPayload) Validate() error {
	if p.RoomID == "" {
		return apperrors.ValidationField("payload.room_id", "room id is required")
	}
	return nil
}

// JuryJobPayload requests the jury ballots for a room.
type JuryJobPayload struct {
	RoomID     string `json:"room_id"`
	JurorCount int    `json:"juror_count"`
}

func (p *JuryJobPayload) JobType() JobType { return JobTypeJury }
func (p *JuryJobPayload) Room() string     { return p.RoomID }

func (p *JuryJobPayload) Validate() error {
	if p.RoomID == "" {
		return apperrors.ValidationField("payload.room_id", "room id is required")
	}
	if p.JurorCount < 1 || p.JurorCount > TotalJurors {
		return apperrors.ValidationField("payload.juror_count", fmt.Sprintf("juror count must be 1-%d", TotalJurors))
	}
	return nil
}

// NotificationEvent names the milestone a notification reports.
type NotificationEvent string

const (
	NotificationMotionAgreed    NotificationEvent = "motion_agreed"
	NotificationMotionStale     NotificationEvent = "motion_stale"
	NotificationDebateStarted   NotificationEvent = "debate_started"
	NotificationVerdictReady    NotificationEvent = "verdict_ready"
	NotificationPipelineStalled NotificationEvent = "pipeline_stalled"
	NotificationRoomCancelled   NotificationEvent = "room_cancelled"
)

// NotificationJobPayload delivers a message to room members.
type NotificationJobPayload struct {
	RoomID     string            `json:"room_id,omitempty"`
	Event      NotificationEvent `json:"event"`
	Recipients []string          `json:"recipients"`
	Message    string            `json:"message"`
}

func (p *NotificationJobPayload) JobType() JobType { return JobTypeNotification }
func (p *NotificationJobPayload) Room() string     { return p.RoomID }

func (p *NotificationJobPayload) Validate() error {
	if p.Event == "" {
		return apperrors.ValidationField("payload.event", "event is required")
	}
	if len(p.Recipients) == 0 {
		return apperrors.ValidationField("payload.recipients", "at least one recipient is required")
	}
	if p.Message == "" {
		return apperrors.ValidationField("payload.message", "message is required")
	}
	return nil
}

// DecodePayload decodes and validates the payload for a job type.
func DecodePayload(t JobType, raw json.RawMessage) (JobPayload, error) {
	var p JobPayload
	switch t {
	case JobTypeDebate:
		p = &DebateJobPayload{}
	case JobTypeJudge:
		p = &JudgeJobPayload{}
	case JobTypeJury:
		p = &JuryJobPayload{}
	case JobTypeNotification:
		p = &NotificationJobPayload{}
	default:
		return nil, apperrors.ValidationField("type", fmt.Sprintf("unknown job type %q", t))
	}
	if err := decodeStrict(raw, p); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid %s payload", t)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DebateJobResult is the result of an ai_debate job.
type DebateJobResult struct {
	RoundsCompleted int `json:"rounds_completed"`
}

// JudgeJobResult is the result of an ai_judge job.
type JudgeJobResult struct {
	Decision JudgeDecision `json:"decision"`
}

// JuryJobResult is the result of an ai_jury job.
type JuryJobResult struct {
	Votes []JuryVote `json:"votes"`
}

// NotificationJobResult is the result of a notification job.
type NotificationJobResult struct {
	Delivered bool `json:"delivered"`
}

// ValidateJobResult checks a worker-supplied result against the contract of its job type.
// An empty result is accepted only for debate and notification jobs.
func ValidateJobResult(t JobType, raw json.RawMessage) error {
	empty := len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	switch t {
	case JobTypeDebate:
		if empty {
			return nil
		}
		var r DebateJobResult
		return decodeResult(raw, &r)
	case JobTypeNotification:
		if empty {
			return nil
		}
		var r NotificationJobResult
		return decodeResult(raw, &r)
	case JobTypeJudge:
		if empty {
			return apperrors.ValidationField("result", "judge result is required")
		}
		var r JudgeJobResult
		if err := decodeResult(raw, &r); err != nil {
			return err
		}
		return r.Decision.Validate()
	case JobTypeJury:
		if empty {
			return apperrors.ValidationField("result", "jury result is required")
		}
		var r JuryJobResult
		if err := decodeResult(raw, &r); err != nil {
			return err
		}
		return ValidateJuryVotes(r.Votes)
	}
	return apperrors.ValidationField("type", fmt.Sprintf("unknown job type %q", t))
}

func decodeResult(raw json.RawMessage, out any) error {
	if err := decodeStrict(raw, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job result")
	}
	return nil
}

func decodeStrict(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
