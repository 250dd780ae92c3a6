package app_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

// contendedStore wraps a shared store so a test can slip another instance's write in
// between a Load and the Save that follows it, or make saves lose outright.
type contendedStore struct {
	*memory.RoomStore

	mu          sync.Mutex
	beforeSave  func()
	staleSaves  int
	savesFailed int
}

func (s *contendedStore) interleave(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSave = fn
}

func (s *contendedStore) failNextSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleSaves = n
}

func (s *contendedStore) Save(ctx context.Context, state *app.RoomState) error {
	s.mu.Lock()
	hook := s.beforeSave
	s.beforeSave = nil
	fail := s.staleSaves > 0
	if fail {
		s.staleSaves--
		s.savesFailed++
	}
	s.mu.Unlock()

	if fail {
		return domain.ErrStaleState
	}
	if hook != nil {
		hook()
	}
	return s.RoomStore.Save(ctx, state)
}

type instance struct {
	svc   *app.GameService
	sched *manualScheduler
}

// twoInstances builds two services over one store, as two processes sharing Redis or
// Postgres would be. Instance a writes through the contended wrapper.
func twoInstances(t *testing.T) (a, b instance, clock *fakeClock, shared *contendedStore) {
	t.Helper()
	clock = &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	base := memory.NewRoomStoreWithClock(clock.Now)
	shared = &contendedStore{RoomStore: base}
	source := &stubSource{questions: []domain.QuestionSpec{mathQuestion(), spellingQuestion()}}

	log := logrus.New()
	log.SetOutput(io.Discard)

	build := func(store app.RoomStore) instance {
		sched := newManualScheduler()
		svc := app.NewGameService(store, source, app.NewBroadcaster(),
			app.WithClock(clock.Now),
			app.WithScheduler(sched),
			app.WithLogger(log),
		)
		return instance{svc: svc, sched: sched}
	}
	return build(shared), build(base), clock, shared
}

func startOn(t *testing.T, inst instance, creator string, others ...string) (domain.Room, domain.QuestionView) {
	t.Helper()
	ctx := context.Background()
	room, err := inst.svc.CreateRoom(ctx, creator, app.RoomOptions{GameType: "math", MaxPlayers: len(others) + 1})
	require.NoError(t, err)
	for _, p := range others {
		_, err := inst.svc.Join(ctx, room.ID, p)
		require.NoError(t, err)
		_, err = inst.svc.SetReady(ctx, room.ID, p, true)
		require.NoError(t, err)
	}
	first, err := inst.svc.Start(ctx, room.ID, creator)
	require.NoError(t, err)
	return room, first
}

func TestTimeoutAdvanceSurvivesConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	a, b, clock, shared := twoInstances(t)
	room, first := startOn(t, a, "alice", "bob", "carol")

	clock.Advance(21 * time.Second)
	shared.interleave(func() {
		require.NoError(t, b.svc.Leave(ctx, room.ID, "carol"))
	})
	require.True(t, a.sched.fire(room.ID))

	current, err := a.svc.CurrentQuestion(ctx, room.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, current.ID)
	assert.Equal(t, 2, current.SequenceNumber)
	_, armed := a.sched.armed(room.ID)
	assert.True(t, armed, "the next round must be timed")

	players, err := b.svc.ListActive(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, players, 2, "the competing leave is kept")
}

func TestSubmitRetriesAfterConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	a, b, clock, shared := twoInstances(t)
	room, first := startOn(t, a, "alice", "bob")

	clock.Advance(2 * time.Second)
	shared.interleave(func() {
		_, err := b.svc.Submit(ctx, room.ID, "bob", domain.Submission{QuestionID: first.ID, Answer: "4"})
		require.NoError(t, err)
	})
	verdict, err := a.svc.Submit(ctx, room.ID, "alice", domain.Submission{QuestionID: first.ID, Answer: "4"})
	require.NoError(t, err)
	assert.True(t, verdict.IsCorrect)
	assert.Equal(t, 100, verdict.PointsEarned)

	standings, err := a.svc.Standings(ctx, room.ID)
	require.NoError(t, err)
	for _, row := range standings {
		assert.Equal(t, 100, row.Score, "player %s", row.PlayerID)
	}
	current, err := a.svc.CurrentQuestion(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.SequenceNumber, "both answered, so the room moved on")
}

func TestContendedSaveIsAConflictNotAnInternalError(t *testing.T) {
	ctx := context.Background()
	a, _, clock, shared := twoInstances(t)
	room, first := startOn(t, a, "alice", "bob")

	clock.Advance(time.Second)
	shared.failNextSaves(100)
	_, err := a.svc.Submit(ctx, room.ID, "bob", domain.Submission{QuestionID: first.ID, Answer: "4"})
	require.ErrorIs(t, err, domain.ErrStaleState)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Less(t, shared.savesFailed, 100, "retries are bounded")
}

func TestTimeoutAdvanceRearmsWhenSaveKeepsLosing(t *testing.T) {
	ctx := context.Background()
	a, _, clock, shared := twoInstances(t)
	room, first := startOn(t, a, "alice", "bob")

	clock.Advance(21 * time.Second)
	shared.failNextSaves(100)
	require.True(t, a.sched.fire(room.ID))

	delay, armed := a.sched.armed(room.ID)
	require.True(t, armed, "a failed timeout advance must be retried")
	assert.Equal(t, time.Second, delay)
	current, err := a.svc.CurrentQuestion(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	shared.failNextSaves(0)
	require.True(t, a.sched.fire(room.ID))
	current, err = a.svc.CurrentQuestion(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.SequenceNumber)
}

func TestSweepSparesRoomTouchedAfterListing(t *testing.T) {
	ctx := context.Background()
	a, b, clock, shared := twoInstances(t)
	room, err := a.svc.CreateRoom(ctx, "alice", app.RoomOptions{GameType: "math", MaxPlayers: 3})
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	shared.interleave(func() {
		_, err := b.svc.Join(ctx, room.ID, "bob")
		require.NoError(t, err)
	})
	n, err := a.svc.SweepIdle(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := a.svc.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomWaiting, got.Status)
}
