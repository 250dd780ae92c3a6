package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

const openRoomsKey = "rooms:open"

// ErrStaleState is returned by Save when another writer saved the room first.
var ErrStaleState = domain.ErrStaleState

// RoomStore keeps room state in Redis so several instances can serve the same rooms.
// Keys:
//
//	room:{id}:state    encoded app.RoomState, expires ttl after the last save
//	room:code:{CODE}   room id holding the code (SETNX; EXPIREAT on release)
//	rooms:open         set of non-terminal room ids
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) Create(ctx context.Context, state *app.RoomState) error {
	ok, err := s.client.SetNX(ctx, codeKey(state.Room.Code), state.Room.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve code: %w", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stateKey(state.Room.ID), state, s.ttl)
	pipe.SAdd(ctx, openRoomsKey, state.Room.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		_ = s.client.Del(ctx, codeKey(state.Room.Code)).Err()
		return fmt.Errorf("create room %s: %w", state.Room.ID, err)
	}
	return nil
}

func (s *RoomStore) Load(ctx context.Context, roomID string) (*app.RoomState, error) {
	state := &app.RoomState{}
	err := s.client.Get(ctx, stateKey(roomID)).Scan(state)
	if errors.Is(err, redis.Nil) {
		// the state expired; drop the id so sweeps stop visiting it
		_ = s.client.SRem(ctx, openRoomsKey, roomID).Err()
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return state, nil
}

// Save writes state if the stored version is the one it was derived from.
func (s *RoomStore) Save(ctx context.Context, state *app.RoomState) error {
	key := stateKey(state.Room.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current := &app.RoomState{}
		if err := tx.Get(ctx, key).Scan(current); err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		if current.Version != state.Version-1 {
			return ErrStaleState
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, state, s.ttl)
			if state.Room.Status.Terminal() {
				pipe.SRem(ctx, openRoomsKey, state.Room.ID)
			} else {
				pipe.SAdd(ctx, openRoomsKey, state.Room.ID)
				if s.ttl > 0 {
					pipe.Expire(ctx, codeKey(state.Room.Code), s.ttl)
				}
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleState
	}
	if err != nil {
		return fmt.Errorf("save room %s: %w", state.Room.ID, err)
	}
	return nil
}

func (s *RoomStore) ResolveCode(ctx context.Context, code string) (string, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve code: %w", err)
	}
	return id, nil
}

// ReleaseCode lets the code key expire at the given instant so a new room may claim it.
func (s *RoomStore) ReleaseCode(ctx context.Context, code, roomID string, at time.Time) error {
	holder, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release code: %w", err)
	}
	if holder != roomID {
		return nil
	}
	return s.client.ExpireAt(ctx, codeKey(code), at).Err()
}

func (s *RoomStore) ListOpen(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, openRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list open rooms: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func stateKey(roomID string) string {
	return "room:" + roomID + ":state"
}

func codeKey(code string) string {
	return "room:code:" + code
}
