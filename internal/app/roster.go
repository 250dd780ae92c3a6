package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/domain"
)

// Join adds playerID to a waiting room. Joining again while still a member returns the
// existing membership unchanged.
func (s *GameService) Join(ctx context.Context, roomID, playerID string) (domain.Player, error) {
	var joined domain.Player
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		if st.Room.Status.Terminal() {
			return domain.ErrRoomNotJoinable
		}
		existing := st.player(playerID)
		if existing != nil && existing.Active() {
			joined = *existing
			tx.readOnly = true
			return nil
		}
		if st.Room.Status != domain.RoomWaiting {
			return domain.ErrRoomNotJoinable
		}
		if len(st.activePlayers()) >= st.Room.MaxPlayers {
			return domain.ErrRoomFull
		}

		if existing != nil {
			existing.Status = domain.PlayerJoined
			existing.JoinedAt = tx.now
		} else {
			existing = &domain.Player{
				ID:       playerID,
				RoomID:   roomID,
				Status:   domain.PlayerJoined,
				JoinedAt: tx.now,
			}
			st.Players = append(st.Players, existing)
		}
		joined = *existing
		tx.emitPlayer(existing)
		return nil
	})
	if err != nil {
		return domain.Player{}, err
	}
	return joined, nil
}

// SetReady toggles readiness before the game starts.
func (s *GameService) SetReady(ctx context.Context, roomID, playerID string, ready bool) (domain.Player, error) {
	var updated domain.Player
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		p := st.player(playerID)
		if p == nil || !p.Active() {
			return domain.ErrPlayerNotInRoom
		}
		if st.Room.Status.Terminal() {
			return domain.ErrRoomTerminal
		}
		if p.Status != domain.PlayerJoined && p.Status != domain.PlayerReady {
			return domain.ErrInvalidPlayerState
		}
		if ready {
			p.Status = domain.PlayerReady
		} else {
			p.Status = domain.PlayerJoined
		}
		updated = *p
		tx.emitPlayer(p)
		return nil
	})
	if err != nil {
		return domain.Player{}, err
	}
	return updated, nil
}

// Leave marks playerID as left. The creator leaving a waiting room cancels it, and a
// game in progress is cancelled once nobody is left to finish it.
func (s *GameService) Leave(ctx context.Context, roomID, playerID string) error {
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		p := st.player(playerID)
		if p == nil {
			return domain.ErrPlayerNotInRoom
		}
		if st.Room.Status.Terminal() {
			return domain.ErrRoomTerminal
		}
		if !p.Active() {
			tx.readOnly = true
			return nil
		}
		p.Status = domain.PlayerLeft
		tx.emitPlayer(p)

		log := s.log.WithFields(logrus.Fields{"room_id": roomID, "player_id": playerID})
		switch st.Room.Status {
		case domain.RoomWaiting:
			if playerID == st.Room.CreatorID {
				log.Info("creator left waiting room, cancelling")
				s.cancelLocked(tx)
			}
		case domain.RoomInProgress:
			if len(st.activePlayers()) == 0 {
				log.Info("last player left, cancelling")
				s.cancelLocked(tx)
				return nil
			}
			if st.Round != nil && st.allAnswered(st.Round.QuestionID) {
				s.advanceLocked(tx)
			}
		}
		return nil
	})
	return err
}

// ListActive returns the members of a room that have not left, in join order.
func (s *GameService) ListActive(ctx context.Context, roomID string) ([]domain.Player, error) {
	state, err := s.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return copyPlayers(state.activePlayers()), nil
}
