// Package relay mirrors save and load completion events from the in-process
// bus to Redis Pub/Sub, so tools outside the game process can watch them.
//
// The relay is an observability sink only: nothing in the save protocol
// depends on it. Channels and keys are namespaced by profile.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/events"
	"github.com/redis/go-redis/v9"
)

// EventsChannel returns the Pub/Sub channel for completion events.
// Pattern: stash:{profile}:save_events
func EventsChannel(profile string) string {
	return fmt.Sprintf("stash:%s:save_events", profile)
}

// HistoryKey returns the Redis list holding recent completion events.
// Pattern: stash:{profile}:save_history
func HistoryKey(profile string) string {
	return fmt.Sprintf("stash:%s:save_history", profile)
}

// DefaultHistoryLength is how many events the history list keeps.
const DefaultHistoryLength = 100

// publishTimeout bounds each Redis call made from a bus handler.
const publishTimeout = 2 * time.Second

// Message is the JSON payload published for every completion event.
type Message struct {
	Kind    string               `json:"kind"` // save_complete or load_complete
	Profile string               `json:"profile"`
	Save    *events.SaveComplete `json:"save,omitempty"`
	Load    *events.LoadComplete `json:"load,omitempty"`
}

// Slot returns the slot of the wrapped event.
func (m *Message) Slot() int {
	if m.Save != nil {
		return m.Save.SaveSlot
	}
	if m.Load != nil {
		return m.Load.SaveSlot
	}
	return -1
}

// Success reports whether the wrapped event succeeded.
func (m *Message) Success() bool {
	if m.Save != nil {
		return m.Save.Success
	}
	return m.Load != nil && m.Load.Success
}

// OperationID returns the operation id of the wrapped event.
func (m *Message) OperationID() string {
	switch {
	case m.Save != nil:
		return m.Save.OperationID
	case m.Load != nil:
		return m.Load.OperationID
	}
	return ""
}

// Relay publishes bus completion events to Redis. It is safe for concurrent use.
type Relay struct {
	rdb           *redis.Client
	profile       string
	historyLength int64

	mu     sync.Mutex
	unsubs []func()
}

// New creates a relay for profile.
func New(redisOpts *redis.Options, profile string) (*Relay, error) {
	if profile == "" {
		return nil, fmt.Errorf("profile cannot be empty")
	}
	return &Relay{
		rdb:           redis.NewClient(redisOpts),
		profile:       profile,
		historyLength: DefaultHistoryLength,
	}, nil
}

// Close detaches from the bus and closes the Redis connection.
func (r *Relay) Close() error {
	r.Detach()
	return r.rdb.Close()
}

// Ping verifies Redis connectivity.
func (r *Relay) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Attach subscribes the relay to completion events on b.
func (r *Relay) Attach(b *bus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsubs = append(r.unsubs,
		bus.Subscribe(b, func(e events.SaveComplete) {
			r.forward(Message{Kind: string(events.KindSaveComplete), Profile: r.profile, Save: &e})
		}),
		bus.Subscribe(b, func(e events.LoadComplete) {
			r.forward(Message{Kind: string(events.KindLoadComplete), Profile: r.profile, Load: &e})
		}),
	)
}

// Detach removes every bus subscription made by Attach.
func (r *Relay) Detach() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// forward runs on the publishing goroutine; failures are logged, never raised.
func (r *Relay) forward(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.Publish(ctx, m); err != nil {
		log.Printf("[Relay] Failed to relay %s for slot %d: %v", m.Kind, m.Slot(), err)
	}
}

// Publish appends m to the history list and publishes it on the events channel.
func (r *Relay) Publish(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}

	key := HistoryKey(r.profile)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, r.historyLength-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record event history: %w", err)
	}

	if err := r.rdb.Publish(ctx, EventsChannel(r.profile), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// History returns up to n recent messages, newest first. Entries that fail
// to parse are skipped.
func (r *Relay) History(ctx context.Context, n int64) ([]Message, error) {
	if n <= 0 {
		return []Message{}, nil
	}
	raw, err := r.rdb.LRange(ctx, HistoryKey(r.profile), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			log.Printf("[Relay] Skipping unreadable history entry: %v", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Subscription delivers relayed messages. Caller must call Close() when done.
type Subscription struct {
	events <-chan *Message
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of messages. It is closed when the subscription
// is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Message {
	return s.events
}

// Errors returns the channel of non-fatal errors such as unreadable payloads.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens for relayed messages of this profile. Delivery is
// at-most-once: Redis drops messages for slow subscribers.
func (r *Relay) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, EventsChannel(r.profile))

	// Wait for the subscription to be confirmed so no message published
	// right after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", EventsChannel(r.profile), err)
	}

	eventsChan := make(chan *Message, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal relay message: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &m:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
