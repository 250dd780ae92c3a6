package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

func TestRoomStoreCreateAndResolve(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()

	if err := store.Create(ctx, newState("room-1", "ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("room:room-1:state") {
		t.Fatalf("expected state key to be set")
	}
	if err := store.Create(ctx, newState("room-2", "ABC123")); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	id, err := store.ResolveCode(ctx, "ABC123")
	if err != nil || id != "room-1" {
		t.Fatalf("resolve: id=%q err=%v", id, err)
	}
	open, _ := store.ListOpen(ctx)
	if len(open) != 1 || open[0] != "room-1" {
		t.Fatalf("unexpected open rooms %v", open)
	}

	loaded, err := store.Load(ctx, "room-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Room.Code != "ABC123" || len(loaded.Players) != 1 {
		t.Fatalf("unexpected state %+v", loaded)
	}
	if _, err := store.Load(ctx, "missing"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoomStoreSaveChecksVersion(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()
	_ = store.Create(ctx, newState("room-1", "ABC123"))

	a, _ := store.Load(ctx, "room-1")
	b, _ := store.Load(ctx, "room-1")

	a.Version++
	a.Room.Status = domain.RoomCancelled
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	b.Version++
	if err := store.Save(ctx, b); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}

	open, _ := store.ListOpen(ctx)
	if len(open) != 0 {
		t.Fatalf("terminal room should leave the open set, got %v", open)
	}
}

func TestRoomStoreReleaseCode(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()
	_ = store.Create(ctx, newState("room-1", "ABC123"))

	// another room's release must not touch the reservation
	before := mr.TTL("room:code:ABC123")
	if err := store.ReleaseCode(ctx, "ABC123", "room-9", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("release foreign: %v", err)
	}
	if ttl := mr.TTL("room:code:ABC123"); ttl != before {
		t.Fatalf("foreign release changed ttl from %s to %s", before, ttl)
	}

	if err := store.ReleaseCode(ctx, "ABC123", "room-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.ResolveCode(ctx, "ABC123"); err != nil {
		t.Fatalf("code should still resolve during grace: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.ResolveCode(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected released code, got %v", err)
	}
	if err := store.Create(ctx, newState("room-2", "ABC123")); err != nil {
		t.Fatalf("expected code reuse, got %v", err)
	}
}

func TestRoomStoreForgetsExpiredRooms(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()
	if err := store.Create(ctx, newState("room-1", "ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("room:code:ABC123"); ttl != time.Hour {
		t.Fatalf("open room code should share the state ttl, got %s", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Load(ctx, "room-1"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected expired room to be gone, got %v", err)
	}
	open, _ := store.ListOpen(ctx)
	if len(open) != 0 {
		t.Fatalf("expired room should leave the open set, got %v", open)
	}
	if _, err := store.ResolveCode(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected expired code, got %v", err)
	}
}

func TestRoomStoreSaveRefreshesCodeTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()
	_ = store.Create(ctx, newState("room-1", "ABC123"))

	mr.FastForward(45 * time.Minute)
	state, err := store.Load(ctx, "room-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	state.Version++
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("room:code:ABC123"); ttl != time.Hour {
		t.Fatalf("expected refreshed code ttl, got %s", ttl)
	}
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newState(id, code string) *app.RoomState {
	state := &app.RoomState{
		Room: domain.Room{ID: id, Code: code, Status: domain.RoomWaiting, MaxPlayers: 2},
	}
	state.Players = []*domain.Player{{ID: "creator", RoomID: id, Status: domain.PlayerJoined}}
	return state
}
