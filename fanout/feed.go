package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Invalidator clears the local read cache when a peer process writes.
type Invalidator interface {
	Invalidate()
}

// Feed propagates change events between processes over a redis channel.
// Every published message carries this process's origin id; the subscribe
// loop skips its own messages since the local write path already invalidated
// and broadcast.
type Feed struct {
	client  *redis.Client
	channel string
	origin  string
	cache   Invalidator
	broker  *Broker
	log     *log.Logger
}

type feedMessage struct {
	Origin string             `json:"origin"`
	Event  domain.ChangeEvent `json:"event"`
}

func NewFeed(client *redis.Client, channel string, cache Invalidator, broker *Broker, logger *log.Logger) *Feed {
	return &Feed{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		cache:   cache,
		broker:  broker,
		log:     logger,
	}
}

// Publish announces a local change to peer processes.
func (f *Feed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(feedMessage{Origin: f.origin, Event: ev})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Run consumes the channel until ctx is cancelled, reconnecting with a short
// pause when the subscription drops. Foreign messages invalidate the cache
// and are re-broadcast to local subscribers.
func (f *Feed) Run(ctx context.Context) {
	for {
		sub := f.client.Subscribe(ctx, f.channel)
		ch := sub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				f.handle(msg.Payload)
			}
		}

		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		f.log.Error("change feed subscription closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (f *Feed) handle(payload string) {
	var msg feedMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		f.log.WithError(err).Error("unable to parse change feed message")
		return
	}
	if msg.Origin == f.origin {
		return
	}
	f.cache.Invalidate()
	f.broker.Broadcast(msg.Event)
}
