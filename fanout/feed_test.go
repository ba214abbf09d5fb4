package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

type countingCache struct {
	mu    sync.Mutex
	count int
}

func (c *countingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func (c *countingCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestFeedAppliesForeignChanges(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := &countingCache{}
	broker := NewBroker()
	receiver := NewFeed(client, "board-changes", cache, broker, log.New())
	publisher := NewFeed(client, "board-changes", &countingCache{}, NewBroker(), log.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		receiver.Run(ctx)
		close(done)
	}()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	// The subscription needs a moment to attach before the publish.
	waitFor(t, func() bool {
		n, err := client.PubSubNumSub(context.Background(), "board-changes").Result()
		return err == nil && n["board-changes"] > 0
	}, "subscription never attached")

	if err := publisher.Publish(context.Background(), domain.ChangeEvent{Kind: "move", Payload: "t1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitFor(t, func() bool { return cache.invalidations() == 1 }, "foreign change did not invalidate the cache")

	select {
	case ev := <-sub:
		if ev.Kind != "move" || ev.Payload != "t1" {
			t.Fatalf("unexpected rebroadcast event %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("foreign change was not rebroadcast")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on context cancel")
	}
}

func TestFeedSkipsOwnMessages(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := &countingCache{}
	feed := NewFeed(client, "board-changes", cache, NewBroker(), log.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		n, err := client.PubSubNumSub(context.Background(), "board-changes").Result()
		return err == nil && n["board-changes"] > 0
	}, "subscription never attached")

	if err := feed.Publish(context.Background(), domain.ChangeEvent{Kind: "add", Payload: "t1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Give the subscriber loop a chance to see the message, then check
	// that the local cache was left alone.
	time.Sleep(100 * time.Millisecond)
	if got := cache.invalidations(); got != 0 {
		t.Fatalf("own message must not invalidate the cache, got %d invalidations", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on context cancel")
	}
}

func TestFeedIgnoresMalformedPayloads(t *testing.T) {
	cache := &countingCache{}
	feed := &Feed{origin: "self", cache: cache, broker: NewBroker(), log: log.New()}

	feed.handle("not json")

	if cache.invalidations() != 0 {
		t.Fatal("malformed payload must be dropped")
	}
}
