// Package devseed populates a development database with rooms at each stage of the
// debate pipeline, driven through the domain services so every row is consistent.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/service"
)

// Demo users that own the seeded rooms.
const (
	PlaintiffID = "dev-plaintiff"
	DefendantID = "dev-defendant"
)

// Stage names the furthest lifecycle step a seeded room is walked to.
type Stage string

const (
	StageWaiting     Stage = "waiting"
	StageNegotiating Stage = "negotiating"
	StageArguing     Stage = "arguing"
	StageDebating    Stage = "debating"
)

// Services are the domain services the seeder drives.
type Services struct {
	Rooms   *service.RoomService
	Motions *service.MotionService
}

// Seeded describes one room created by Run.
type Seeded struct {
	Stage  Stage
	RoomID string
	Status model.RoomStatus
}

type seedRoom struct {
	title       string
	stage       Stage
	motion      string
	description string
}

var seedRooms = []seedRoom{
	{title: "Tabs versus spaces", stage: StageWaiting},
	{
		title:       "Four day work week",
		stage:       StageNegotiating,
		motion:      "A four day week improves output",
		description: "Whether teams on a four day week ship as much as teams on five days over two quarters.",
	},
	{
		title:       "Monorepo or polyrepo",
		stage:       StageArguing,
		motion:      "A monorepo suits a team of forty",
		description: "Whether a forty engineer organisation is better served by one repository than by many.",
	},
	{
		title:       "Static typing pays off",
		stage:       StageDebating,
		motion:      "Static typing reduces production bugs",
		description: "Whether statically typed services see fewer production incidents than dynamically typed ones.",
	},
}

var seedArguments = map[model.Side]string{
	model.SideA: "The plaintiff holds that the evidence from comparable teams supports the motion in full.",
	model.SideB: "The defendant holds that the cited evidence is anecdotal and the motion does not follow from it.",
}

// Run creates one room per stage. Each run adds new rooms; rooms have no natural key to dedupe on.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) ([]Seeded, error) {
	if svcs.Rooms == nil || svcs.Motions == nil {
		return nil, errors.New("devseed requires room and motion services")
	}
	if logger == nil {
		logger = slog.Default()
	}

	seeded := make([]Seeded, 0, len(seedRooms))
	for _, sr := range seedRooms {
		room, err := seed(ctx, svcs, sr)
		if err != nil {
			return seeded, fmt.Errorf("seed %s room %q: %w", sr.stage, sr.title, err)
		}
		logger.InfoContext(ctx, "seeded room", "stage", sr.stage, "room_id", room.ID, "status", room.Status)
		seeded = append(seeded, Seeded{Stage: sr.stage, RoomID: room.ID, Status: room.Status})
	}
	return seeded, nil
}

func seed(ctx context.Context, svcs Services, sr seedRoom) (*model.Room, error) {
	room, err := svcs.Rooms.Create(ctx, &model.CreateRoomRequest{Title: sr.title, CreatorID: PlaintiffID})
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	if sr.stage == StageWaiting {
		return room, nil
	}

	if _, err = svcs.Rooms.Join(ctx, room.ID, DefendantID); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	motion, err := svcs.Motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID:      room.ID,
		ProposerID:  PlaintiffID,
		Title:       sr.motion,
		Description: sr.description,
	})
	if err != nil {
		return nil, fmt.Errorf("propose motion: %w", err)
	}
	if sr.stage == StageNegotiating {
		return svcs.Rooms.Get(ctx, room.ID)
	}

	if _, err = svcs.Motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: motion.ID,
		UserID:   DefendantID,
		Action:   model.RespondAccept,
	}); err != nil {
		return nil, fmt.Errorf("accept motion: %w", err)
	}
	if sr.stage == StageArguing {
		return svcs.Rooms.Get(ctx, room.ID)
	}

	for side, user := range map[model.Side]string{model.SideA: PlaintiffID, model.SideB: DefendantID} {
		if _, err = svcs.Rooms.SubmitArgument(ctx, room.ID, user, seedArguments[side]); err != nil {
			return nil, fmt.Errorf("submit argument %s: %w", side, err)
		}
	}
	return svcs.Rooms.Get(ctx, room.ID)
}
