package fanout

import (
	"context"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Hub is the engine-facing notifier: every change event goes to the local
// subscriber set and, when a feed is configured, to peer processes. Feed
// failures are logged and never reach the mutation that triggered them.
type Hub struct {
	broker *Broker
	feed   *Feed
	log    *log.Logger
}

// NewHub bundles the broker with an optional feed. feed may be nil for
// single-process deployments.
func NewHub(broker *Broker, feed *Feed, logger *log.Logger) *Hub {
	return &Hub{broker: broker, feed: feed, log: logger}
}

func (h *Hub) Notify(ctx context.Context, ev domain.ChangeEvent) {
	h.broker.Broadcast(ev)
	if h.feed == nil {
		return
	}
	if err := h.feed.Publish(ctx, ev); err != nil {
		h.log.WithFields(log.Fields{"kind": ev.Kind}).WithError(err).Error("change feed publish failed")
	}
}
