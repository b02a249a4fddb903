package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/service"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// RoomHandlers serves the user-facing room, motion, argument and verdict routes.
type RoomHandlers struct {
	Rooms    *service.RoomService
	Motions  *service.MotionService
	Debates  *service.DebateService
	Verdicts *service.VerdictService
	Logger   *slog.Logger
}

// pathID returns the {name} path value when it is a well-formed id, writing a 400
// otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.PathValue(name)
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     apperrors.Validationf("%s must be a valid id", name),
			Field:   name,
		})
		return "", false
	}
	return id, true
}

// requester returns the user id set by RequireUser.
func requester(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// memberRoom loads the room and checks that userID belongs to it.
func (h *RoomHandlers) memberRoom(ctx context.Context, roomID, userID string) (*model.Room, error) {
	room, err := h.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(userID) {
		return nil, apperrors.Forbiddenf("user %s is not a member of room %s", userID, roomID)
	}
	return room, nil
}

// Create handles POST /api/rooms.
func (h *RoomHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRoomRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.CreatorID = requester(r)

	room, err := h.Rooms.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, room)
}

// Get handles GET /api/rooms/{id} and returns the room's lifecycle view.
func (h *RoomHandlers) Get(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.memberRoom(r.Context(), roomID, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	view, err := h.Rooms.Status(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Join handles POST /api/rooms/{id}/join.
func (h *RoomHandlers) Join(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	room, err := h.Rooms.Join(r.Context(), roomID, requester(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, room)
}

// Cancel handles POST /api/rooms/{id}/cancel.
func (h *RoomHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	room, err := h.Rooms.Cancel(r.Context(), roomID, requester(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, room)
}

// ProposeMotion handles POST /api/rooms/{id}/motion.
func (h *RoomHandlers) ProposeMotion(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req model.ProposeMotionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.RoomID = roomID
	req.ProposerID = requester(r)

	m, err := h.Motions.Propose(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

// GetMotion handles GET /api/rooms/{id}/motion.
func (h *RoomHandlers) GetMotion(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.memberRoom(r.Context(), roomID, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	m, err := h.Motions.GetByRoom(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// RespondMotion handles POST /api/motions/{id}/respond.
func (h *RoomHandlers) RespondMotion(w http.ResponseWriter, r *http.Request) {
	motionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req model.RespondMotionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.MotionID = motionID
	req.UserID = requester(r)

	m, err := h.Motions.Respond(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// DeleteMotion handles DELETE /api/motions/{id}.
func (h *RoomHandlers) DeleteMotion(w http.ResponseWriter, r *http.Request) {
	motionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Motions.Delete(r.Context(), motionID, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type argumentRequest struct {
	Content string `json:"content"`
}

// SubmitArgument handles POST /api/rooms/{id}/arguments.
func (h *RoomHandlers) SubmitArgument(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req argumentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	room, err := h.Rooms.SubmitArgument(r.Context(), roomID, requester(r), req.Content)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, room)
}

// StartDebate handles POST /api/rooms/{id}/debate. The debate job is returned with 202.
func (h *RoomHandlers) StartDebate(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Rooms.StartDebate(r.Context(), roomID, requester(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

// ListRounds handles GET /api/rooms/{id}/rounds.
func (h *RoomHandlers) ListRounds(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.memberRoom(r.Context(), roomID, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	rounds, err := h.Debates.ListRounds(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if rounds == nil {
		rounds = []*model.Round{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetVerdict handles GET /api/rooms/{id}/verdict.
func (h *RoomHandlers) GetVerdict(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.memberRoom(r.Context(), roomID, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	v, err := h.Verdicts.Get(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// AggregateVerdict handles POST /api/rooms/{id}/verdict. A newly stored verdict is
// returned with 201, an existing one with 200.
func (h *RoomHandlers) AggregateVerdict(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.memberRoom(r.Context(), roomID, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	v, created, err := h.Verdicts.Aggregate(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, v)
}
