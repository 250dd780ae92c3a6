package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/domain"
)

// codeAlphabet is uppercase alphanumeric without the look-alikes 0/O and 1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 8

// RoomOptions are the caller-supplied attributes of a new room.
type RoomOptions struct {
	GameType   string         `json:"gameType"`
	GradeLevel int            `json:"gradeLevel"`
	Difficulty string         `json:"difficulty"`
	MaxPlayers int            `json:"maxPlayers"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// CreateRoom opens a waiting room with a fresh code. The creator is its first player.
func (s *GameService) CreateRoom(ctx context.Context, creatorID string, opts RoomOptions) (domain.Room, error) {
	if creatorID == "" || strings.TrimSpace(opts.GameType) == "" {
		return domain.Room{}, domain.ErrInvalidRoomOptions
	}
	if opts.MaxPlayers == 0 {
		opts.MaxPlayers = 4
	}
	if opts.MaxPlayers < 2 {
		return domain.Room{}, domain.ErrInvalidRoomOptions
	}

	now := s.now()
	settings := make(map[string]any, len(opts.Settings))
	for k, v := range opts.Settings {
		settings[k] = v
	}
	room := domain.Room{
		ID:         s.newID(),
		GameType:   strings.TrimSpace(opts.GameType),
		CreatorID:  creatorID,
		Status:     domain.RoomWaiting,
		MaxPlayers: opts.MaxPlayers,
		GradeLevel: opts.GradeLevel,
		Difficulty: opts.Difficulty,
		Settings:   settings,
		CreatedAt:  now,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode(s.codeLength)
		if err != nil {
			return domain.Room{}, err
		}
		room.Code = code
		state := newRoomState(room, now)
		state.Players = []*domain.Player{{
			ID:       creatorID,
			RoomID:   room.ID,
			Status:   domain.PlayerJoined,
			JoinedAt: now,
		}}
		err = s.store.Create(ctx, state)
		if errors.Is(err, domain.ErrCodeTaken) {
			s.log.WithField("code", code).Debug("room code collision, retrying")
			continue
		}
		if err != nil {
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}

		s.log.WithFields(logrus.Fields{
			"room_id": room.ID,
			"code":    room.Code,
			"creator": creatorID,
		}).Info("room created")
		tx := &roomTxn{state: state, now: now}
		tx.emitRoom()
		tx.emitPlayer(state.Players[0])
		s.commit(ctx, tx)
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room: no free code after %d attempts", maxCodeAttempts)
}

// FindByCode looks a room up by its code, case-insensitively. Codes of rooms that
// ended more than the grace window ago are not found.
func (s *GameService) FindByCode(ctx context.Context, code string) (domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	roomID, err := s.store.ResolveCode(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := s.FindByID(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Code != code {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if room.Status.Terminal() && room.EndedAt != nil && !s.now().Before(room.EndedAt.Add(s.codeGrace)) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

// FindByID returns the room with id.
func (s *GameService) FindByID(ctx context.Context, id string) (domain.Room, error) {
	state, err := s.store.Load(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	return state.Room, nil
}

func generateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	base := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
