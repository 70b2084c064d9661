package relay

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/fetti/rideagent/internal/model/query"
)

// ErrChannelFull is returned when a channel's queue cannot accept another
// message without blocking the publisher.
var ErrChannelFull = errors.New("channel queue full")

// Channel is one connected client's outbound message queue plus liveness
// state. The streaming endpoint drains the queue; the registry fills it.
type Channel struct {
	id    string
	queue chan []byte

	mu   sync.Mutex
	live bool
}

// ID returns the channel's client identifier.
func (c *Channel) ID() string { return c.id }

// Messages exposes the outbound queue for the consumer loop.
func (c *Channel) Messages() <-chan []byte { return c.queue }

// Live reports whether the channel still has a consumer.
func (c *Channel) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *Channel) markNotLive() {
	c.mu.Lock()
	c.live = false
	c.mu.Unlock()
}

// enqueue adds a serialized message without ever blocking the publisher.
func (c *Channel) enqueue(payload []byte) error {
	select {
	case c.queue <- payload:
		return nil
	default:
		return ErrChannelFull
	}
}

// Registry tracks the live output channels and broadcasts published messages
// to all of them. It owns channel membership exclusively; consumers only
// hold the handle returned by Register.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	buffer   int
}

// NewRegistry creates an empty registry. buffer bounds each channel's queue.
func NewRegistry(buffer int) *Registry {
	if buffer < 1 {
		buffer = 1
	}
	return &Registry{
		channels: make(map[string]*Channel),
		buffer:   buffer,
	}
}

// Register allocates a new channel with a fresh client ID and adds it to the
// registry. The caller must eventually Unregister it on every exit path.
func (r *Registry) Register() *Channel {
	ch := &Channel{
		id:    uuid.NewString(),
		queue: make(chan []byte, r.buffer),
		live:  true,
	}

	r.mu.Lock()
	r.channels[ch.id] = ch
	r.mu.Unlock()

	log.Printf("[registry] client connected: %s", ch.id)
	return ch
}

// Unregister removes a channel and marks it not-live. Idempotent:
// unregistering an unknown ID is not an error.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	ch, ok := r.channels[id]
	if ok {
		delete(r.channels, id)
	}
	r.mu.Unlock()

	if ok {
		ch.markNotLive()
		log.Printf("[registry] client disconnected: %s", id)
	}
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Publish serializes the message once and enqueues it on every live channel.
// A failure on one channel never affects delivery to the others; channels
// found dead or full are removed. With no channels connected the message is
// dropped (there is no durable delivery guarantee). Returns the number of
// successful deliveries.
func (r *Registry) Publish(msg query.FormattedMessage) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[registry] failed to marshal message for request %s: %v", msg.RequestID, err)
		return 0
	}

	r.mu.RLock()
	snapshot := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		snapshot = append(snapshot, ch)
	}
	r.mu.RUnlock()

	if len(snapshot) == 0 {
		log.Printf("[registry] no clients connected, dropping message for request %s", msg.RequestID)
		return 0
	}

	delivered := 0
	var stale []string
	for _, ch := range snapshot {
		if !ch.Live() {
			stale = append(stale, ch.id)
			continue
		}
		if err := ch.enqueue(payload); err != nil {
			log.Printf("[registry] delivery to client %s failed: %v", ch.id, err)
			ch.markNotLive()
			stale = append(stale, ch.id)
			continue
		}
		delivered++
	}

	for _, id := range stale {
		r.Unregister(id)
	}

	return delivered
}
