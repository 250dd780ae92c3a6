package domain

import "time"

// EventType names a realtime notification.
type EventType string

const (
	EventRoomChanged      EventType = "room_changed"
	EventPlayerChanged    EventType = "player_changed"
	EventQuestionAdvanced EventType = "question_advanced"
	EventRoomCompleted    EventType = "room_completed"
)

// Event is a best-effort notification scoped to a room. It never carries an answer key.
type Event struct {
	Type      EventType     `json:"type"`
	RoomID    string        `json:"roomId"`
	Room      *Room         `json:"room,omitempty"`
	Player    *Player       `json:"player,omitempty"`
	Question  *QuestionView `json:"question,omitempty"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Deadline  *time.Time    `json:"deadline,omitempty"`
	Standings []Standing    `json:"standings,omitempty"`
	At        time.Time     `json:"at"`
}
