// Package broadcast implements the bounded progress multicast: every
// subscriber of a batch gets its own buffered channel of capacity 256, and
// a lagging subscriber drops its oldest buffered event rather than
// stalling the producer. Publish holds the hub's mutex only while it
// copies the batch's subscriber set and never waits on a subscriber's
// channel; it is not lock-free. Grounded on internal/queue/client.go's
// Redis-backed task-status publishing, adapted from a durable queue into
// an ephemeral, non-blocking fan-out; the optional Redis mirror reuses
// go-redis/v8's pub/sub the same way internal/queue/client.go uses its
// list commands.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/freedkr/docbatch/internal/logging"
	"github.com/freedkr/docbatch/internal/model"
)

// ringCapacity is the fixed channel buffer size spec.md §4.7 mandates.
const ringCapacity = 256

// Subscription is a single consumer's view of a batch's progress events.
type Subscription struct {
	ch   chan model.ProgressEvent
	hub  *Hub
	key  string
}

// Events returns the channel to range over. It is closed when Close
// unregisters the subscription.
func (s *Subscription) Events() <-chan model.ProgressEvent {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.key, s)
}

// Hub multiplexes ProgressEvents to per-batch subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscription]struct{}
	redis       *redis.Client
	log         *logging.Logger
}

// New creates a Hub. redisClient may be nil, in which case events are only
// fanned out in-process.
func New(redisClient *redis.Client) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		redis:       redisClient,
		log:         logging.New("broadcast"),
	}
}

// Subscribe registers a new subscriber for a batch. Callers should
// subscribe before process_batch starts if they need the full event
// stream (spec.md §9).
func (h *Hub) Subscribe(batchID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{ch: make(chan model.ProgressEvent, ringCapacity), key: batchID}
	sub.hub = h
	if h.subscribers[batchID] == nil {
		h.subscribers[batchID] = make(map[*Subscription]struct{})
	}
	h.subscribers[batchID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(batchID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[batchID]; ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			close(sub.ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, batchID)
		}
	}
}

// Publish fans ev out to every subscriber of ev.BatchID. It never blocks:
// a subscriber whose buffer is full has its oldest event dropped to make
// room for the new one.
func (h *Hub) Publish(ev model.ProgressEvent) {
	h.mu.Lock()
	subs := h.subscribers[ev.BatchID]
	targets := make([]*Subscription, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		h.sendNonBlocking(sub.ch, ev)
	}

	if h.redis != nil {
		h.publishRedis(ev)
	}
}

func (h *Hub) sendNonBlocking(ch chan model.ProgressEvent, ev model.ProgressEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	// Buffer is full: drop the oldest queued event, then retry once.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
		// Another producer raced us and refilled the buffer; the event is
		// dropped, which matches "late subscribers may miss events".
	}
}

func (h *Hub) publishRedis(ev model.ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warnf("marshal progress event for redis mirror: %v", err)
		return
	}
	if err := h.redis.Publish(context.Background(), "docbatch:progress:"+ev.BatchID, payload).Err(); err != nil {
		h.log.Warnf("publish progress event to redis: %v", err)
	}
}
