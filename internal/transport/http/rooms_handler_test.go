package http

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

func TestRoomLifecycleOverREST(t *testing.T) {
	srv := newTestServer(t)

	var room domain.Room
	status := srv.do(t, http.MethodPost, "/rooms", "alice", app.RoomOptions{GameType: "math", GradeLevel: 2, MaxPlayers: 2}, &room)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "alice", room.CreatorID)

	var found domain.Room
	status = srv.do(t, http.MethodGet, "/codes/"+strings.ToLower(room.Code), "bob", nil, &found)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, room.ID, found.ID)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/join", "bob", nil, nil))

	var errBody errorPayload
	status = srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/start", "alice", nil, &errBody)
	require.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "players_not_ready", errBody.Code)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/ready", "bob", map[string]bool{"ready": true}, nil))

	status = srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/start", "bob", nil, &errBody)
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_creator", errBody.Code)

	var first domain.QuestionView
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/start", "alice", nil, &first))
	assert.Equal(t, 1, first.SequenceNumber)

	var verdict domain.Verdict
	status = srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/answers", "bob", domain.Submission{QuestionID: first.ID, Answer: "4"}, &verdict)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, verdict.IsCorrect)
	assert.Equal(t, 100, verdict.PointsEarned)

	var snap domain.Snapshot
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/rooms/"+room.ID, "bob", nil, &snap))
	require.NotNil(t, snap.MyVerdict)
	assert.Equal(t, domain.RoomInProgress, snap.Room.Status)

	status = srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/answers", "alice", domain.Submission{QuestionID: "stale", Answer: "4"}, &errBody)
	require.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "question_mismatch", errBody.Code)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/answers", "alice", domain.Submission{QuestionID: first.ID, Answer: "3"}, nil))

	var standings []domain.Standing
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/rooms/"+room.ID+"/standings", "alice", nil, &standings))
	require.Len(t, standings, 2)
	assert.Equal(t, "bob", standings[0].PlayerID)
	assert.Equal(t, 1, standings[0].Rank)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/rooms/"+room.ID, "alice", nil, &snap))
	assert.Equal(t, domain.RoomCompleted, snap.Room.Status)
}

func TestRESTRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	status := srv.do(t, http.MethodPost, "/rooms", "", app.RoomOptions{GameType: "math"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRESTRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/rooms", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+srv.token(t, "alice"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEnd(t *testing.T) {
	srv := newTestServer(t)
	var room domain.Room
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/rooms", "alice", app.RoomOptions{GameType: "math"}, &room))

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/rooms/"+room.ID+"/end", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/admin/rooms/"+room.ID+"/end", nil)
	req.Header.Set("X-Admin-Token", testAdminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var errBody errorPayload
	status := srv.do(t, http.MethodPost, "/rooms/"+room.ID+"/join", "bob", nil, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "room_not_joinable", errBody.Code)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrRoomNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrRoomFull))
	assert.Equal(t, http.StatusConflict, statusFor(fmt.Errorf("save room r1: %w", domain.ErrStaleState)))
	assert.Equal(t, http.StatusForbidden, statusFor(domain.ErrIdentityMismatch))
	assert.Equal(t, http.StatusPreconditionFailed, statusFor(domain.ErrInsufficientPlayers))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, "internal", errorBody(assert.AnError).Code)
}
