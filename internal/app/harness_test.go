package app_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// manualScheduler records scheduled callbacks; tests fire them explicitly.
type manualScheduler struct {
	mu      sync.Mutex
	pending map[string]func()
	delays  map[string]time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: make(map[string]func()), delays: make(map[string]time.Duration)}
}

func (m *manualScheduler) Schedule(key string, delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[key] = fn
	m.delays[key] = delay
}

func (m *manualScheduler) Cancel(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	delete(m.delays, key)
}

func (m *manualScheduler) armed(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.delays[key]
	return d, ok
}

func (m *manualScheduler) fire(key string) bool {
	m.mu.Lock()
	fn, ok := m.pending[key]
	delete(m.pending, key)
	delete(m.delays, key)
	m.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type stubSource struct {
	questions []domain.QuestionSpec
	calls     int
}

func (s *stubSource) FetchQuestions(_ context.Context, q domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	s.calls++
	if q.Count < len(s.questions) {
		return s.questions[:q.Count], nil
	}
	return s.questions, nil
}

type harness struct {
	svc    *app.GameService
	clock  *fakeClock
	sched  *manualScheduler
	bus    *app.Broadcaster
	store  *memory.RoomStore
	source *stubSource
}

func newHarness(t *testing.T, questions ...domain.QuestionSpec) *harness {
	t.Helper()
	if len(questions) == 0 {
		questions = []domain.QuestionSpec{mathQuestion()}
	}
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	sched := newManualScheduler()
	bus := app.NewBroadcaster()
	store := memory.NewRoomStoreWithClock(clock.Now)
	source := &stubSource{questions: questions}

	log := logrus.New()
	log.SetOutput(io.Discard)

	svc := app.NewGameService(store, source, bus,
		app.WithClock(clock.Now),
		app.WithScheduler(sched),
		app.WithLogger(log),
		app.WithCodeGrace(5*time.Minute),
	)
	return &harness{svc: svc, clock: clock, sched: sched, bus: bus, store: store, source: source}
}

// startedRoom creates a room for creator, seats and readies every other player, and starts it.
func (h *harness) startedRoom(t *testing.T, creator string, others ...string) domain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := h.svc.CreateRoom(ctx, creator, app.RoomOptions{GameType: "math", GradeLevel: 2, MaxPlayers: len(others) + 1})
	require.NoError(t, err)
	for _, p := range others {
		_, err := h.svc.Join(ctx, room.ID, p)
		require.NoError(t, err)
		_, err = h.svc.SetReady(ctx, room.ID, p, true)
		require.NoError(t, err)
	}
	_, err = h.svc.Start(ctx, room.ID, creator)
	require.NoError(t, err)
	return room
}

func mathQuestion() domain.QuestionSpec {
	return domain.QuestionSpec{
		Prompt:           "What is 2 + 2?",
		Type:             domain.MultipleChoice,
		Options:          []string{"3", "4", "5"},
		CorrectAnswer:    "4",
		Points:           100,
		TimeLimitSeconds: 20,
		Subject:          "math",
	}
}

func spellingQuestion() domain.QuestionSpec {
	return domain.QuestionSpec{
		Prompt:           "Spell the animal with black and white stripes",
		Type:             domain.Spelling,
		CorrectAnswer:    "Zebra",
		Points:           50,
		TimeLimitSeconds: 15,
		Subject:          "spelling",
	}
}
