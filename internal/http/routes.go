package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/private-judge/judge-api/internal/adapters/workerauth"
	"github.com/private-judge/judge-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     *service.JobService
	Rooms    *service.RoomService
	Motions  *service.MotionService
	Debates  *service.DebateService
	Verdicts *service.VerdictService

	// Workers authenticates the worker routes. Required.
	Workers workerauth.Verifier
	// Health is consulted by /healthz (optional).
	Health HealthCheck

	// MaxWait caps the long-poll wait of GET /api/jobs/next.
	MaxWait time.Duration
	Logger  *slog.Logger // Logger for request errors (optional)
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rooms := &RoomHandlers{
		Rooms:    services.Rooms,
		Motions:  services.Motions,
		Debates:  services.Debates,
		Verdicts: services.Verdicts,
		Logger:   logger,
	}
	jobs := &JobHandlers{Jobs: services.Jobs, Rooms: services.Rooms, MaxWait: services.MaxWait, Logger: logger}
	debates := &DebateHandlers{Debates: services.Debates, Logger: logger}

	registerUserRoutes(mux, rooms, jobs)
	registerWorkerRoutes(mux, jobs, debates, RequireWorker(services.Workers, logger))

	health := healthHandler(services.Health)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	return mux
}

func registerUserRoutes(mux *http.ServeMux, rooms *RoomHandlers, jobs *JobHandlers) {
	user := func(h http.HandlerFunc) http.Handler { return RequireUser(h) }

	mux.Handle("POST /api/rooms", user(rooms.Create))
	mux.Handle("GET /api/rooms/{id}", user(rooms.Get))
	mux.Handle("POST /api/rooms/{id}/join", user(rooms.Join))
	mux.Handle("POST /api/rooms/{id}/cancel", user(rooms.Cancel))
	mux.Handle("POST /api/rooms/{id}/motion", user(rooms.ProposeMotion))
	mux.Handle("GET /api/rooms/{id}/motion", user(rooms.GetMotion))
	mux.Handle("POST /api/motions/{id}/respond", user(rooms.RespondMotion))
	mux.Handle("DELETE /api/motions/{id}", user(rooms.DeleteMotion))
	mux.Handle("POST /api/rooms/{id}/arguments", user(rooms.SubmitArgument))
	mux.Handle("POST /api/rooms/{id}/debate", user(rooms.StartDebate))
	mux.Handle("GET /api/rooms/{id}/rounds", user(rooms.ListRounds))
	mux.Handle("GET /api/rooms/{id}/verdict", user(rooms.GetVerdict))
	mux.Handle("POST /api/rooms/{id}/verdict", user(rooms.AggregateVerdict))
	mux.Handle("GET /api/jobs/{id}", user(jobs.Get))
	mux.Handle("POST /api/jobs/{id}/cancel", user(jobs.Cancel))
}

func registerWorkerRoutes(
	mux *http.ServeMux,
	jobs *JobHandlers,
	debates *DebateHandlers,
	auth func(http.Handler) http.Handler,
) {
	worker := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.Handle("GET /api/jobs/next", worker(jobs.Next))
	mux.Handle("GET /api/jobs/stats", worker(jobs.Stats))
	mux.Handle("POST /api/jobs/{id}/begin", worker(jobs.Begin))
	mux.Handle("POST /api/jobs/{id}/progress", worker(jobs.Progress))
	mux.Handle("POST /api/jobs/{id}/complete", worker(jobs.Complete))
	mux.Handle("POST /api/jobs/{id}/fail", worker(jobs.Fail))
	mux.Handle("POST /api/rooms/{id}/rounds", worker(debates.StartRound))
	mux.Handle("POST /api/rounds/{id}/turns", worker(debates.RecordTurn))
	mux.Handle("POST /api/rounds/{id}/complete", worker(debates.CompleteRound))
}
