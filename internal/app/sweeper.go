package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/domain"
)

// SweepIdle ends every open room with no activity for at least idle. It returns the
// number of rooms ended.
func (s *GameService) SweepIdle(ctx context.Context, idle time.Duration) (int, error) {
	ids, err := s.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open rooms: %w", err)
	}
	ended := 0
	for _, id := range ids {
		ok, err := s.endIfIdle(ctx, id, idle)
		if err != nil {
			if !errors.Is(err, domain.ErrRoomNotFound) {
				s.log.WithError(err).WithField("room_id", id).Warn("sweep: failed to end room")
			}
			continue
		}
		if ok {
			ended++
		}
	}
	return ended, nil
}

// endIfIdle cancels roomID when it is still open and idle once its lock is held, so
// activity that lands between listing and ending keeps the room alive.
func (s *GameService) endIfIdle(ctx context.Context, roomID string, idle time.Duration) (bool, error) {
	ended := false
	_, err := s.mutate(ctx, roomID, func(tx *roomTxn) error {
		st := tx.state
		if st.Room.Status.Terminal() || tx.now.Sub(st.LastActivity) < idle {
			ended = false
			tx.readOnly = true
			return nil
		}
		s.log.WithField("room_id", roomID).Info("idle room ended")
		s.cancelLocked(tx)
		ended = true
		return nil
	})
	return ended, err
}

// Sweeper periodically cancels idle rooms through GameService.End.
type Sweeper struct {
	service  *GameService
	idle     time.Duration
	interval time.Duration
	log      logrus.FieldLogger
}

func NewSweeper(service *GameService, idle, interval time.Duration, log logrus.FieldLogger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{service: service, idle: idle, interval: interval, log: log}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.service.SweepIdle(ctx, s.idle)
			if err != nil {
				s.log.WithError(err).Warn("idle sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("rooms", n).Info("idle rooms cancelled")
			}
		}
	}
}
