package app

import (
	"encoding/json"
	"fmt"
	"time"

	"quiz-arena-service/internal/domain"
)

// RoomState is the authoritative record of one room: the room row, its roster,
// the materialized question sequence, the running round and all graded verdicts.
//
// It is persisted by a RoomStore through MarshalBinary/UnmarshalBinary. It is never
// sent to clients; Snapshot builds the client-facing read model instead.
type RoomState struct {
	Room     domain.Room
	Players  []*domain.Player
	Sequence *Sequence
	Round    *Round
	// Verdicts is keyed by question id, then player id.
	Verdicts     map[string]map[string]domain.Verdict
	LastActivity time.Time
	Version      int64
}

func newRoomState(room domain.Room, now time.Time) *RoomState {
	return &RoomState{
		Room:         room,
		Verdicts:     make(map[string]map[string]domain.Verdict),
		LastActivity: now,
	}
}

func (s *RoomState) player(id string) *domain.Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *RoomState) activePlayers() []*domain.Player {
	active := make([]*domain.Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

func (s *RoomState) verdict(questionID, playerID string) (domain.Verdict, bool) {
	byPlayer, ok := s.Verdicts[questionID]
	if !ok {
		return domain.Verdict{}, false
	}
	v, ok := byPlayer[playerID]
	return v, ok
}

func (s *RoomState) recordVerdict(playerID string, v domain.Verdict) {
	if s.Verdicts == nil {
		s.Verdicts = make(map[string]map[string]domain.Verdict)
	}
	byPlayer, ok := s.Verdicts[v.QuestionID]
	if !ok {
		byPlayer = make(map[string]domain.Verdict)
		s.Verdicts[v.QuestionID] = byPlayer
	}
	byPlayer[playerID] = v
}

// allAnswered reports whether every active player has a verdict for questionID.
func (s *RoomState) allAnswered(questionID string) bool {
	active := s.activePlayers()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if _, ok := s.verdict(questionID, p.ID); !ok {
			return false
		}
	}
	return true
}

type storedState struct {
	Room         domain.Room                          `json:"room"`
	Players      []*domain.Player                     `json:"players"`
	Questions    []storedQuestion                     `json:"questions,omitempty"`
	Index        int                                  `json:"index"`
	Round        *Round                               `json:"round,omitempty"`
	Verdicts     map[string]map[string]domain.Verdict `json:"verdicts,omitempty"`
	LastActivity time.Time                            `json:"lastActivity"`
	Version      int64                                `json:"version"`
}

type storedQuestion struct {
	View domain.QuestionView `json:"view"`
	Key  string              `json:"key"`
}

// MarshalBinary encodes the state for storage, answer keys included.
func (s *RoomState) MarshalBinary() ([]byte, error) {
	stored := storedState{
		Room:         s.Room,
		Players:      s.Players,
		Round:        s.Round,
		Verdicts:     s.Verdicts,
		LastActivity: s.LastActivity,
		Version:      s.Version,
	}
	if s.Sequence != nil {
		stored.Index = s.Sequence.index
		for _, e := range s.Sequence.entries {
			stored.Questions = append(stored.Questions, storedQuestion{View: e.view, Key: e.key})
		}
	}
	return json.Marshal(stored)
}

// UnmarshalBinary restores a state written by MarshalBinary.
func (s *RoomState) UnmarshalBinary(data []byte) error {
	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode room state: %w", err)
	}
	*s = RoomState{
		Room:         stored.Room,
		Players:      stored.Players,
		Round:        stored.Round,
		Verdicts:     stored.Verdicts,
		LastActivity: stored.LastActivity,
		Version:      stored.Version,
	}
	if s.Verdicts == nil {
		s.Verdicts = make(map[string]map[string]domain.Verdict)
	}
	if len(stored.Questions) > 0 {
		seq := &Sequence{index: stored.Index}
		for _, q := range stored.Questions {
			seq.entries = append(seq.entries, sequenceEntry{view: q.View, key: q.Key})
		}
		s.Sequence = seq
	}
	return nil
}

// Clone returns a deep copy, used by in-memory stores so callers never share pointers.
func (s *RoomState) Clone() (*RoomState, error) {
	data, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	clone := &RoomState{}
	if err := clone.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return clone, nil
}
