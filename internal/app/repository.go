package app

import (
	"context"
	"time"
)

// RoomStore abstracts where room state lives (in-memory, Redis, Postgres).
type RoomStore interface {
	// Create persists a new room and reserves its code. It returns domain.ErrCodeTaken
	// when another room holds the code.
	Create(ctx context.Context, state *RoomState) error
	// Load returns domain.ErrRoomNotFound for unknown ids.
	Load(ctx context.Context, roomID string) (*RoomState, error)
	Save(ctx context.Context, state *RoomState) error
	// ResolveCode maps an upper-case room code to its room id. Released codes are not found.
	ResolveCode(ctx context.Context, code string) (string, error)
	// ReleaseCode frees code at the given instant, if roomID still holds it.
	ReleaseCode(ctx context.Context, code, roomID string, at time.Time) error
	// ListOpen returns the ids of rooms that are not terminal.
	ListOpen(ctx context.Context) ([]string, error)
}
