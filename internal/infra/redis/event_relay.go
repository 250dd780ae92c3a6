package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

// EventRelay is an app.Notifier that routes room events through Redis pub/sub so that
// websocket clients connected to any instance see them. Publish only writes to Redis;
// Run delivers everything received on the channel to the local Broadcaster, including
// this instance's own events.
type EventRelay struct {
	client  *redis.Client
	channel string
	local   *app.Broadcaster
	log     logrus.FieldLogger
}

func NewEventRelay(client *redis.Client, channel string, local *app.Broadcaster, log logrus.FieldLogger) *EventRelay {
	if channel == "" {
		channel = "rooms:events"
	}
	return &EventRelay{client: client, channel: channel, local: local, log: log}
}

func (r *EventRelay) Publish(ctx context.Context, evt domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		r.log.WithError(err).WithField("room_id", evt.RoomID).Error("encode room event")
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.log.WithError(err).WithField("room_id", evt.RoomID).Warn("publish room event")
	}
}

// Run subscribes to the relay channel and forwards events until ctx is done.
func (r *EventRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.WithField("channel", r.channel).Info("event relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var evt domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.log.WithError(err).Warn("dropping malformed room event")
				continue
			}
			r.local.Publish(ctx, evt)
		}
	}
}
