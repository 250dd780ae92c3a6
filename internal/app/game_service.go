package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/domain"
)

// GameService is the room lifecycle controller. Every mutation of a room goes through
// it and is serialized by a per-room lock; events and timers are applied only after the
// new state has been saved.
type GameService struct {
	store     RoomStore
	sequencer *Sequencer
	notifier  Notifier
	scheduler Scheduler
	policy    ScoringPolicy
	locks     *roomLocks
	log       logrus.FieldLogger

	now              func() time.Time
	newID            func() string
	codeLength       int
	codeGrace        time.Duration
	questionsPerRoom int
}

// Option configures a GameService.
type Option func(*GameService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func WithScheduler(scheduler Scheduler) Option {
	return func(s *GameService) { s.scheduler = scheduler }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *GameService) { s.log = log }
}

func WithScoring(policy ScoringPolicy) Option {
	return func(s *GameService) { s.policy = policy }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *GameService) { s.newID = newID }
}

// WithCodeLength sets the number of characters in generated room codes.
func WithCodeLength(n int) Option {
	return func(s *GameService) {
		if n > 0 {
			s.codeLength = n
		}
	}
}

// WithCodeGrace sets how long a terminal room keeps its code reserved.
func WithCodeGrace(d time.Duration) Option {
	return func(s *GameService) { s.codeGrace = d }
}

func WithQuestionsPerRoom(n int) Option {
	return func(s *GameService) {
		if n > 0 {
			s.questionsPerRoom = n
		}
	}
}

func NewGameService(store RoomStore, questions QuestionSource, notifier Notifier, opts ...Option) *GameService {
	s := &GameService{
		store:            store,
		notifier:         notifier,
		policy:           DefaultScoringPolicy(),
		locks:            newRoomLocks(),
		log:              logrus.StandardLogger(),
		now:              time.Now,
		newID:            func() string { return uuid.NewString() },
		codeLength:       6,
		codeGrace:        10 * time.Minute,
		questionsPerRoom: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		s.scheduler = NewTimerScheduler()
	}
	if s.notifier == nil {
		s.notifier = NewBroadcaster()
	}
	s.sequencer = NewSequencer(questions, s.newID, s.questionsPerRoom)
	return s
}

// roomTxn collects the side effects of one room mutation until it is committed.
type roomTxn struct {
	state       *RoomState
	now         time.Time
	events      []domain.Event
	arm         *Round
	disarm      bool
	releaseCode bool
	readOnly    bool
}

func (t *roomTxn) emit(evt domain.Event) {
	evt.RoomID = t.state.Room.ID
	evt.At = t.now
	t.events = append(t.events, evt)
}

func (t *roomTxn) emitRoom() {
	room := t.state.Room
	t.emit(domain.Event{Type: domain.EventRoomChanged, Room: &room})
}

func (t *roomTxn) emitPlayer(p *domain.Player) {
	player := *p
	t.emit(domain.Event{Type: domain.EventPlayerChanged, Player: &player})
}

// maxSaveAttempts bounds how often mutate re-applies a change that lost a version race
// against another instance sharing the store.
const maxSaveAttempts = 5

// timerRetryDelay is how long a failed timeout advance waits before trying again.
const timerRetryDelay = time.Second

// mutate loads roomID under its lock, applies fn and persists the result. If fn fails
// nothing is saved or published. When the save loses to a concurrent writer the room is
// reloaded and fn applied again, so fn must only assign to captured variables.
func (s *GameService) mutate(ctx context.Context, roomID string, fn func(tx *roomTxn) error) (*RoomState, error) {
	release := s.locks.lock(roomID)
	defer release()

	var err error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		var state *RoomState
		state, err = s.store.Load(ctx, roomID)
		if err != nil {
			return nil, err
		}
		tx := &roomTxn{state: state, now: s.now()}
		if err := fn(tx); err != nil {
			return nil, err
		}
		if !tx.readOnly {
			state.LastActivity = tx.now
			state.Version++
			err = s.store.Save(ctx, state)
			if errors.Is(err, domain.ErrStaleState) {
				s.log.WithFields(logrus.Fields{"room_id": roomID, "attempt": attempt}).Debug("room saved concurrently, retrying")
				continue
			}
			if err != nil {
				s.log.WithError(err).WithField("room_id", roomID).Error("failed to save room state")
				return nil, fmt.Errorf("save room %s: %w", roomID, err)
			}
		}
		s.commit(ctx, tx)
		return state, nil
	}
	s.log.WithField("room_id", roomID).Warn("giving up on contended room update")
	return nil, err
}

func (s *GameService) commit(ctx context.Context, tx *roomTxn) {
	room := tx.state.Room
	if tx.disarm {
		s.scheduler.Cancel(room.ID)
	}
	if tx.arm != nil {
		s.armRound(room.ID, *tx.arm, tx.now)
	}
	if tx.releaseCode {
		at := tx.now.Add(s.codeGrace)
		if err := s.store.ReleaseCode(ctx, room.Code, room.ID, at); err != nil {
			s.log.WithError(err).WithField("room_id", room.ID).Warn("failed to schedule room code release")
		}
	}
	for _, evt := range tx.events {
		s.notifier.Publish(ctx, evt)
	}
}

func (s *GameService) armRound(roomID string, round Round, now time.Time) {
	delay := round.Deadline().Sub(now)
	if delay < 0 {
		delay = 0
	}
	questionID := round.QuestionID
	s.scheduleAdvance(roomID, questionID, delay)
}

// scheduleAdvance fires OnQuestionAdvance for questionID after delay. A failed advance is
// retried for the same question until it succeeds or the room is gone; a retry for a
// question that was advanced elsewhere is a no-op.
func (s *GameService) scheduleAdvance(roomID, questionID string, delay time.Duration) {
	s.scheduler.Schedule(roomID, delay, func() {
		_, err := s.OnQuestionAdvance(context.Background(), roomID, questionID)
		if err == nil || errors.Is(err, domain.ErrRoomNotFound) {
			return
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"room_id":     roomID,
			"question_id": questionID,
		}).Warn("round timeout advance failed, retrying")
		s.scheduleAdvance(roomID, questionID, timerRetryDelay)
	})
}

// Snapshot returns the client-facing view of a room for callerID.
func (s *GameService) Snapshot(ctx context.Context, roomID, callerID string) (domain.Snapshot, error) {
	state, err := s.store.Load(ctx, roomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	now := s.now()
	snap := domain.Snapshot{
		Room:       state.Room,
		Players:    copyPlayers(state.activePlayers()),
		ServerTime: now,
	}
	if state.Sequence != nil {
		snap.TotalQuestions = state.Sequence.Len()
	}
	if state.Room.Status == domain.RoomInProgress && state.Sequence != nil && state.Round != nil {
		if view, ok := state.Sequence.Current(); ok {
			snap.Question = &view
			started := state.Round.StartedAt
			deadline := state.Round.Deadline()
			snap.QuestionStarted = &started
			snap.Deadline = &deadline
			snap.RemainingSeconds = state.Round.Remaining(now)
			if v, ok := state.verdict(view.ID, callerID); ok {
				snap.MyVerdict = &v
			}
		}
	}
	return snap, nil
}

// Standings returns the active players ordered by rank.
func (s *GameService) Standings(ctx context.Context, roomID string) ([]domain.Standing, error) {
	state, err := s.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return standings(state), nil
}

// Resume re-arms round timers for open rooms, typically after a restart. Rounds that
// expired while the process was down are advanced immediately.
func (s *GameService) Resume(ctx context.Context) (int, error) {
	ids, err := s.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open rooms: %w", err)
	}
	resumed := 0
	for _, id := range ids {
		state, err := s.store.Load(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("room_id", id).Warn("skipping room on resume")
			continue
		}
		if state.Room.Status != domain.RoomInProgress || state.Round == nil {
			continue
		}
		round := *state.Round
		now := s.now()
		if round.Expired(now) || state.allAnswered(round.QuestionID) {
			if _, err := s.OnQuestionAdvance(ctx, id, round.QuestionID); err != nil {
				s.log.WithError(err).WithField("room_id", id).Warn("failed to advance room on resume")
				continue
			}
		} else {
			s.armRound(id, round, now)
		}
		resumed++
	}
	return resumed, nil
}

// standings ranks active players by score, then correct answers, then join order.
func standings(state *RoomState) []domain.Standing {
	active := state.activePlayers()
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})
	out := make([]domain.Standing, 0, len(active))
	for i, p := range active {
		out = append(out, domain.Standing{
			PlayerID:       p.ID,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			Rank:           i + 1,
		})
	}
	return out
}

func copyPlayers(players []*domain.Player) []domain.Player {
	out := make([]domain.Player, 0, len(players))
	for _, p := range players {
		out = append(out, *p)
	}
	return out
}
