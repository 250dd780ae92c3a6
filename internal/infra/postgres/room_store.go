package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

// ErrStaleState is returned by Save when the row was updated by another writer.
var ErrStaleState = domain.ErrStaleState

type roomRow struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID        string    `bun:"id,pk"`
	Code      string    `bun:"code,notnull"`
	Status    string    `bun:"status,notnull"`
	State     string    `bun:"state,type:jsonb,notnull"`
	Version   int64     `bun:"version,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type roomCodeRow struct {
	bun.BaseModel `bun:"table:room_codes,alias:rc"`

	Code      string     `bun:"code,pk"`
	RoomID    string     `bun:"room_id,notnull"`
	ExpiresAt *time.Time `bun:"expires_at"`
}

// RoomStore persists room state as a JSONB document per room, with codes reserved in
// their own table so a released code can be claimed again after its grace window.
type RoomStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db, clock: time.Now}
}

func (s *RoomStore) Create(ctx context.Context, state *app.RoomState) error {
	data, err := state.MarshalBinary()
	if err != nil {
		return err
	}
	now := s.clock()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		code := &roomCodeRow{Code: state.Room.Code, RoomID: state.Room.ID}
		res, err := tx.NewInsert().
			Model(code).
			On("CONFLICT (code) DO UPDATE").
			Set("room_id = EXCLUDED.room_id").
			Set("expires_at = NULL").
			Where("rc.expires_at IS NOT NULL AND rc.expires_at <= ?", now).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("reserve code: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrCodeTaken
		}

		row := &roomRow{
			ID:        state.Room.ID,
			Code:      state.Room.Code,
			Status:    string(state.Room.Status),
			State:     string(data),
			Version:   state.Version,
			UpdatedAt: now,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("create room %s: %w", state.Room.ID, err)
		}
		return nil
	})
}

func (s *RoomStore) Load(ctx context.Context, roomID string) (*app.RoomState, error) {
	row := new(roomRow)
	err := s.db.NewSelect().Model(row).Where("r.id = ?", roomID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	state := &app.RoomState{}
	if err := state.UnmarshalBinary([]byte(row.State)); err != nil {
		return nil, err
	}
	return state, nil
}

// Save updates the row only if it still holds the previous version.
func (s *RoomStore) Save(ctx context.Context, state *app.RoomState) error {
	data, err := state.MarshalBinary()
	if err != nil {
		return err
	}
	row := &roomRow{
		ID:        state.Room.ID,
		Code:      state.Room.Code,
		Status:    string(state.Room.Status),
		State:     string(data),
		Version:   state.Version,
		UpdatedAt: s.clock(),
	}
	res, err := s.db.NewUpdate().
		Model(row).
		Column("status", "state", "version", "updated_at").
		Where("r.id = ?", row.ID).
		Where("r.version = ?", state.Version-1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save room %s: %w", row.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := s.db.NewSelect().Model((*roomRow)(nil)).Where("r.id = ?", row.ID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("save room %s: %w", row.ID, err)
		}
		if !exists {
			return domain.ErrRoomNotFound
		}
		return ErrStaleState
	}
	return nil
}

func (s *RoomStore) ResolveCode(ctx context.Context, code string) (string, error) {
	row := new(roomCodeRow)
	err := s.db.NewSelect().
		Model(row).
		Where("rc.code = ?", code).
		Where("(rc.expires_at IS NULL OR rc.expires_at > ?)", s.clock()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve code: %w", err)
	}
	return row.RoomID, nil
}

func (s *RoomStore) ReleaseCode(ctx context.Context, code, roomID string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*roomCodeRow)(nil)).
		Set("expires_at = ?", at).
		Where("rc.code = ?", code).
		Where("rc.room_id = ?", roomID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release code: %w", err)
	}
	return nil
}

func (s *RoomStore) ListOpen(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*roomRow)(nil)).
		Column("id").
		Where("r.status IN (?)", bun.In([]string{string(domain.RoomWaiting), string(domain.RoomInProgress)})).
		Order("id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list open rooms: %w", err)
	}
	return ids, nil
}
