package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. State is copied on the
// way in and out so callers never share pointers with the store.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.RoomState
	codes map[string]codeReservation
	clock func() time.Time
}

type codeReservation struct {
	roomID    string
	expiresAt time.Time
}

func (c codeReservation) released(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

func NewRoomStore() *RoomStore {
	return NewRoomStoreWithClock(time.Now)
}

// NewRoomStoreWithClock allows deterministic code expiry in tests.
func NewRoomStoreWithClock(clock func() time.Time) *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.RoomState),
		codes: make(map[string]codeReservation),
		clock: clock,
	}
}

func (s *RoomStore) Create(_ context.Context, state *app.RoomState) error {
	clone, err := state.Clone()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[state.Room.ID]; ok {
		return fmt.Errorf("room %s already exists", state.Room.ID)
	}
	now := s.clock()
	for code, held := range s.codes {
		if held.released(now) {
			delete(s.codes, code)
		}
	}
	if _, ok := s.codes[state.Room.Code]; ok {
		return domain.ErrCodeTaken
	}
	s.codes[state.Room.Code] = codeReservation{roomID: state.Room.ID}
	s.rooms[state.Room.ID] = clone
	return nil
}

func (s *RoomStore) Load(_ context.Context, roomID string) (*app.RoomState, error) {
	s.mu.RLock()
	state, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return state.Clone()
}

func (s *RoomStore) Save(_ context.Context, state *app.RoomState) error {
	clone, err := state.Clone()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[state.Room.ID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if current.Version != state.Version-1 {
		return domain.ErrStaleState
	}
	s.rooms[state.Room.ID] = clone
	return nil
}

func (s *RoomStore) ResolveCode(_ context.Context, code string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held, ok := s.codes[code]
	if !ok || held.released(s.clock()) {
		return "", domain.ErrRoomNotFound
	}
	return held.roomID, nil
}

func (s *RoomStore) ReleaseCode(_ context.Context, code, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.codes[code]
	if !ok || held.roomID != roomID {
		return nil
	}
	held.expiresAt = at
	s.codes[code] = held
	return nil
}

func (s *RoomStore) ListOpen(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id, state := range s.rooms {
		if !state.Room.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
