package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/auth"
	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

const testAdminToken = "admin-secret"

type testServer struct {
	*httptest.Server
	service *app.GameService
	issuer  *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	scheduler := app.NewTimerScheduler()
	t.Cleanup(scheduler.Stop)

	bus := app.NewBroadcaster()
	questions := memory.NewQuestionCache(memory.NewQuestionBank(sampleBank()), time.Minute)
	service := app.NewGameService(memory.NewRoomStore(), questions, bus,
		app.WithLogger(log),
		app.WithScheduler(scheduler),
	)

	server := httptest.NewServer(NewRouter(RouterConfig{
		Service:    service,
		Bus:        bus,
		Issuer:     issuer,
		AdminToken: testAdminToken,
		Log:        log,
	}))
	t.Cleanup(server.Close)
	return &testServer{Server: server, service: service, issuer: issuer}
}

func (s *testServer) token(t *testing.T, playerID string) string {
	t.Helper()
	token, err := s.issuer.Issue(playerID, playerID)
	require.NoError(t, err)
	return token
}

// do sends a JSON request as playerID and decodes the response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, playerID string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if playerID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, playerID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func sampleBank() []memory.BankQuestion {
	return []memory.BankQuestion{
		{
			GameType: "math", GradeLevel: 2,
			QuestionSpec: domain.QuestionSpec{
				Prompt: "What is 2 + 2?", Type: domain.MultipleChoice,
				Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 100, TimeLimitSeconds: 20,
			},
		},
	}
}
