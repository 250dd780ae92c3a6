package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/domain"
)

// Start moves a waiting room into play: the question list is materialized, every
// active player starts playing and the clock for question 1 begins.
func (s *GameService) Start(ctx context.Context, roomID, requestedBy string) (domain.QuestionView, error) {
	var first domain.QuestionView
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		if requestedBy != st.Room.CreatorID {
			return domain.ErrNotCreator
		}
		switch {
		case st.Room.Status.Terminal():
			return domain.ErrRoomTerminal
		case st.Room.Status != domain.RoomWaiting:
			return domain.ErrAlreadyStarted
		}

		active := st.activePlayers()
		if len(active) < 2 {
			return domain.ErrInsufficientPlayers
		}
		for _, p := range active {
			if p.ID != st.Room.CreatorID && p.Status != domain.PlayerReady {
				return domain.ErrPlayersNotReady
			}
		}

		seq, err := s.sequencer.Materialize(ctx, st.Room)
		if err != nil {
			return err
		}
		view, _ := seq.Current()

		st.Sequence = seq
		st.Round = startRound(view.ID, view.TimeLimitSeconds, tx.now)
		st.Room.Status = domain.RoomInProgress
		started := tx.now
		st.Room.StartedAt = &started
		for _, p := range active {
			p.Status = domain.PlayerPlaying
			tx.emitPlayer(p)
		}
		tx.arm = st.Round
		tx.emitRoom()
		tx.emitQuestion(view, *st.Round)
		first = view

		s.log.WithFields(logrus.Fields{
			"room_id":   roomID,
			"players":   len(active),
			"questions": seq.Len(),
		}).Info("room started")
		return nil
	})
	if err != nil {
		return domain.QuestionView{}, err
	}
	return first, nil
}

// Submit grades an answer for the current question. Re-submitting for a question that
// was already graded returns the original verdict without touching the score.
func (s *GameService) Submit(ctx context.Context, roomID, playerID string, sub domain.Submission) (domain.Verdict, error) {
	if sub.PlayerID != "" && sub.PlayerID != playerID {
		return domain.Verdict{}, domain.ErrIdentityMismatch
	}
	var verdict domain.Verdict
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		p := st.player(playerID)
		if p == nil || !p.Active() {
			return domain.ErrPlayerNotInRoom
		}
		if prior, ok := st.verdict(sub.QuestionID, playerID); ok {
			verdict = prior
			tx.readOnly = true
			return nil
		}
		if st.Room.Status != domain.RoomInProgress || st.Sequence == nil || st.Round == nil {
			return domain.ErrRoomNotActive
		}
		view, ok := st.Sequence.Current()
		if !ok || view.ID != sub.QuestionID {
			return domain.ErrQuestionMismatch
		}
		if p.Status != domain.PlayerPlaying {
			return domain.ErrInvalidPlayerState
		}

		v := grade(st.Sequence, *st.Round, view, sub, tx.now, s.policy)
		p.TotalAnswers++
		if v.IsCorrect {
			p.CorrectAnswers++
			p.Score += v.PointsEarned
		}
		if st.Sequence.IsLast(view.ID) {
			p.Status = domain.PlayerFinished
		}
		v.TotalScore = p.Score
		st.recordVerdict(playerID, v)
		verdict = v
		tx.emitPlayer(p)

		s.log.WithFields(logrus.Fields{
			"room_id":     roomID,
			"player_id":   playerID,
			"question_id": view.ID,
			"correct":     v.IsCorrect,
			"points":      v.PointsEarned,
			"expired":     v.Expired,
		}).Debug("answer graded")

		if st.allAnswered(view.ID) {
			s.advanceLocked(tx)
		}
		return nil
	})
	if err != nil {
		return domain.Verdict{}, err
	}
	return verdict, nil
}

// OnQuestionAdvance moves past questionID once every active player has answered it or
// its round has expired. Calls for a question that is no longer current are no-ops, so
// the timer and the last submission can race safely. It reports whether it advanced.
func (s *GameService) OnQuestionAdvance(ctx context.Context, roomID, questionID string) (bool, error) {
	advanced := false
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		if st.Room.Status != domain.RoomInProgress || st.Round == nil || st.Round.QuestionID != questionID {
			tx.readOnly = true
			return nil
		}
		if !st.Round.Expired(tx.now) && !st.allAnswered(questionID) {
			// fired early; wait for the real deadline
			tx.readOnly = true
			tx.arm = st.Round
			return nil
		}
		s.advanceLocked(tx)
		advanced = true
		return nil
	})
	return advanced, err
}

// End terminates a room regardless of progress. It is the hook used by operators and
// the idle sweeper; the room ends as cancelled.
func (s *GameService) End(ctx context.Context, roomID string) error {
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		if tx.state.Room.Status.Terminal() {
			return domain.ErrRoomTerminal
		}
		s.log.WithField("room_id", roomID).Info("room ended")
		s.cancelLocked(tx)
		return nil
	})
	return err
}

// CurrentQuestion returns the client-safe view of the question being played.
func (s *GameService) CurrentQuestion(ctx context.Context, roomID string) (domain.QuestionView, error) {
	state, err := s.store.Load(ctx, roomID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	if state.Room.Status != domain.RoomInProgress || state.Sequence == nil {
		return domain.QuestionView{}, domain.ErrRoomNotActive
	}
	view, ok := state.Sequence.Current()
	if !ok {
		return domain.QuestionView{}, domain.ErrRoomNotActive
	}
	return view, nil
}

// Remaining returns the whole seconds left on the current question.
func (s *GameService) Remaining(ctx context.Context, roomID string) (int, error) {
	round, err := s.currentRound(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return round.Remaining(s.now()), nil
}

// HasExpired reports whether the current question's time is up.
func (s *GameService) HasExpired(ctx context.Context, roomID string) (bool, error) {
	round, err := s.currentRound(ctx, roomID)
	if err != nil {
		return false, err
	}
	return round.Expired(s.now()), nil
}

func (s *GameService) currentRound(ctx context.Context, roomID string) (Round, error) {
	state, err := s.store.Load(ctx, roomID)
	if err != nil {
		return Round{}, err
	}
	if state.Room.Status != domain.RoomInProgress || state.Round == nil {
		return Round{}, domain.ErrRoomNotActive
	}
	return *state.Round, nil
}

func (t *roomTxn) emitQuestion(view domain.QuestionView, round Round) {
	started := round.StartedAt
	deadline := round.Deadline()
	t.emit(domain.Event{
		Type:      domain.EventQuestionAdvanced,
		Question:  &view,
		StartedAt: &started,
		Deadline:  &deadline,
	})
}

// advanceLocked moves to the next question or completes the room.
func (s *GameService) advanceLocked(tx *roomTxn) {
	st := tx.state
	next, ok := st.Sequence.Advance()
	if !ok {
		s.completeLocked(tx)
		return
	}
	st.Round = startRound(next.ID, next.TimeLimitSeconds, tx.now)
	tx.arm = st.Round
	tx.emitQuestion(next, *st.Round)
}

func (s *GameService) completeLocked(tx *roomTxn) {
	st := tx.state
	st.Room.Status = domain.RoomCompleted
	ended := tx.now
	st.Room.EndedAt = &ended
	st.Round = nil

	for _, p := range st.activePlayers() {
		p.Status = domain.PlayerFinished
	}
	ranked := standings(st)
	for _, row := range ranked {
		rank := row.Rank
		st.player(row.PlayerID).Rank = &rank
	}

	tx.arm = nil
	tx.disarm = true
	tx.releaseCode = true
	tx.emitRoom()
	tx.emit(domain.Event{Type: domain.EventRoomCompleted, Standings: ranked})

	s.log.WithFields(logrus.Fields{
		"room_id": st.Room.ID,
		"players": len(ranked),
	}).Info("room completed")
}

func (s *GameService) cancelLocked(tx *roomTxn) {
	st := tx.state
	st.Room.Status = domain.RoomCancelled
	ended := tx.now
	st.Room.EndedAt = &ended
	st.Round = nil

	tx.arm = nil
	tx.disarm = true
	tx.releaseCode = true
	tx.emitRoom()
}
