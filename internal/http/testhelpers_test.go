package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/adapters/workerauth"
	"github.com/private-judge/judge-api/internal/data/memstore"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/service"
	"github.com/private-judge/judge-api/internal/testutil"
)

const workerToken = "worker-secret"

// testAPI is the router wired over an in-memory store.
type testAPI struct {
	handler http.Handler
	jobs    *service.JobService
	rooms   *service.RoomService
	motions *service.MotionService
	debates *service.DebateService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New(memstore.Options{})

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         store.Jobs(),
		Rooms:        store.Rooms(),
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(jobs.StopAllListeners)

	motions := service.MustNewMotionService(service.MotionServiceOptions{Repo: store.Motions(), Rooms: store.Rooms()})
	debates := service.MustNewDebateService(service.DebateServiceOptions{Repo: store.Debates(), Rooms: store.Rooms()})
	verdicts := service.MustNewVerdictService(service.VerdictServiceOptions{Repo: store.Verdicts()})
	rooms := service.MustNewRoomService(service.RoomServiceOptions{
		Rooms:     store.Rooms(),
		Motions:   store.Motions(),
		Jobs:      jobs,
		Debates:   debates,
		Verdicts:  verdicts,
		MotionSvc: motions,
	})

	verifier, err := workerauth.NewStaticVerifier(workerToken)
	require.NoError(t, err)

	return &testAPI{
		handler: NewRouter(RouterServices{
			Jobs:     jobs,
			Rooms:    rooms,
			Motions:  motions,
			Debates:  debates,
			Verdicts: verdicts,
			Workers:  verifier,
			MaxWait:  50 * time.Millisecond,
		}),
		jobs:    jobs,
		rooms:   rooms,
		motions: motions,
		debates: debates,
	}
}

type call struct {
	method string
	path   string
	user   string
	token  string
	body   any
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(UserIDHeader, c.user)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) user(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, call{method: method, path: path, user: user, body: body})
}

func (a *testAPI) worker(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, call{method: method, path: path, token: workerToken, body: body})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error
}

// agreedRoom walks a room through creation, joining and motion agreement over HTTP.
func (a *testAPI) agreedRoom(t *testing.T) *model.Room {
	t.Helper()
	rec := a.user(t, http.MethodPost, "/api/rooms", testutil.CreatorID, map[string]string{"title": "Remote work"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	room := decode[model.Room](t, rec)

	rec = a.user(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", testutil.ParticipantID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.user(t, http.MethodPost, "/api/rooms/"+room.ID+"/motion", testutil.CreatorID, map[string]string{
		"title":       testutil.MotionTitle,
		"description": testutil.MotionDescription,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[model.Motion](t, rec)

	rec = a.user(t, http.MethodPost, "/api/motions/"+m.ID+"/respond", testutil.ParticipantID, map[string]string{"action": "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return &room
}

// debatingRoom submits both arguments and returns the room with its queued debate job.
func (a *testAPI) debatingRoom(t *testing.T) (*model.Room, *model.Job) {
	t.Helper()
	room := a.agreedRoom(t)
	for user, side := range map[string]model.Side{testutil.CreatorID: model.SideA, testutil.ParticipantID: model.SideB} {
		rec := a.user(t, http.MethodPost, "/api/rooms/"+room.ID+"/arguments", user,
			map[string]string{"content": testutil.Argument(side)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := a.worker(t, http.MethodGet, "/api/jobs/next?types=ai_debate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[struct {
		Jobs []*model.Job `json:"jobs"`
	}](t, rec)
	require.Len(t, next.Jobs, 1)
	return room, next.Jobs[0]
}
