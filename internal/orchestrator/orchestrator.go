// Package orchestrator drives save and load operations over the event bus.
//
// A save broadcasts a SaveRequest, gathers the SaveResponses of every
// registered participant through an aggregator, builds a save package, writes
// it to a slot and publishes a SaveComplete. A load reads the slot, parses the
// package and publishes a LoadDelivery carrying every system's blob, followed
// by a LoadComplete. Every call yields exactly one completion event.
package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/stash/internal/aggregator"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/codec"
)

var (
	// ErrSlotBusy is returned when a slot already has an operation in flight.
	ErrSlotBusy = errors.New("save slot has an operation in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrDuplicateParticipant is returned when a name is registered twice.
	ErrDuplicateParticipant = errors.New("participant already registered")
)

// PartialSavePolicy decides what happens to a save that timed out.
type PartialSavePolicy string

const (
	// PartialWrite writes whatever arrived and reports failure. A replaced
	// slot keeps its previous content as the backup.
	PartialWrite PartialSavePolicy = "write"

	// PartialDiscard drops the partial package; the slot is left untouched.
	PartialDiscard PartialSavePolicy = "discard"
)

// Validate checks the policy is a known value.
func (p PartialSavePolicy) Validate() error {
	switch p {
	case PartialWrite, PartialDiscard:
		return nil
	default:
		return fmt.Errorf("unknown partial save policy: %q (must be write or discard)", p)
	}
}

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Codec               *codec.Codec // nil means plain
	Timeout             time.Duration
	GameVersion         string
	Scene               string
	PartialSaves        PartialSavePolicy
	PersistAcrossScenes bool
}

// Orchestrator coordinates save and load operations. It is safe for
// concurrent use.
type Orchestrator struct {
	bus   *bus.Bus
	store slot.Store
	agg   *aggregator.Aggregator
	codec *codec.Codec
	opts  Options
	locks *slotLocks

	mu           sync.Mutex
	participants []string
	scene        string
	inflight     map[int]string // slot → operation id
	closed       bool

	unsubscribe func()
}

// New creates an orchestrator and subscribes it to save responses on b.
func New(b *bus.Bus, store slot.Store, opts Options) (*Orchestrator, error) {
	if b == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("slot store cannot be nil")
	}
	if opts.Codec == nil {
		opts.Codec = codec.New(nil)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PartialSaves == "" {
		opts.PartialSaves = PartialWrite
	}
	if err := opts.PartialSaves.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		bus:      b,
		store:    store,
		agg:      aggregator.New(opts.Timeout),
		codec:    opts.Codec,
		opts:     opts,
		locks:    newSlotLocks(),
		scene:    opts.Scene,
		inflight: make(map[int]string),
	}
	o.unsubscribe = bus.Subscribe(b, o.handleResponse)
	return o, nil
}

// Close unsubscribes from the bus and cancels every operation still collecting.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.unsubscribe()
	for _, id := range o.agg.Pending() {
		_ = o.agg.Cancel(id, "orchestrator closed")
	}
	return nil
}

// Register adds a participant. Saves started afterwards expect a response
// from it; saves already collecting do not.
func (o *Orchestrator) Register(name string) error {
	if name == "" {
		return fmt.Errorf("participant name cannot be empty")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range o.participants {
		if p == name {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, name)
		}
	}
	o.participants = append(o.participants, name)
	log.Printf("[Orchestrator] Registered participant %s", name)
	return nil
}

// Unregister removes a participant. Unknown names are ignored.
func (o *Orchestrator) Unregister(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, p := range o.participants {
		if p == name {
			o.participants = append(o.participants[:i:i], o.participants[i+1:]...)
			log.Printf("[Orchestrator] Unregistered participant %s", name)
			return
		}
	}
}

// Participants returns the registered participant names in registration order.
func (o *Orchestrator) Participants() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.participants...)
}

// Scene returns the scene name stamped on new packages.
func (o *Orchestrator) Scene() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scene
}

// ChangeScene sets the scene stamped on new packages. Unless the orchestrator
// persists across scenes, operations still collecting are cancelled and
// reported as failed.
func (o *Orchestrator) ChangeScene(name string) {
	o.mu.Lock()
	previous := o.scene
	o.scene = name
	o.mu.Unlock()

	o.logEvent("scene_changed", map[string]interface{}{
		"from": previous,
		"to":   name,
	})

	if o.opts.PersistAcrossScenes {
		return
	}
	for _, id := range o.agg.Pending() {
		if err := o.agg.Cancel(id, "scene changed"); err == nil {
			log.Printf("[Orchestrator] Cancelled operation %s: scene changed to %s", id, name)
		}
	}
}

// EndTick finalizes every open-ended save, i.e. those started while no
// participant was registered. Call it once per frame or tick.
func (o *Orchestrator) EndTick() int {
	return len(o.agg.FinalizeOpenEnded())
}

// InFlight returns the slots with an operation in progress, ascending.
func (o *Orchestrator) InFlight() []int {
	o.mu.Lock()
	defer o.mu.Unlock()

	slots := make([]int, 0, len(o.inflight))
	for s := range o.inflight {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	return slots
}

// reserve marks slotNum busy for operationID.
func (o *Orchestrator) reserve(slotNum int, operationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if current, busy := o.inflight[slotNum]; busy {
		return fmt.Errorf("%w: slot %d (operation %s)", ErrSlotBusy, slotNum, current)
	}
	o.inflight[slotNum] = operationID
	return nil
}

// release clears the reservation made by operationID, if it still holds it.
func (o *Orchestrator) release(slotNum int, operationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inflight[slotNum] == operationID {
		delete(o.inflight, slotNum)
	}
}

func (o *Orchestrator) snapshot() (participants []string, scene string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.participants...), o.scene
}

// logEvent logs a structured event in JSON format.
func (o *Orchestrator) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

// slotLocks serializes store access per slot.
type slotLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[int]*sync.Mutex)}
}

func (l *slotLocks) lock(slotNum int) func() {
	l.mu.Lock()
	m, ok := l.locks[slotNum]
	if !ok {
		m = &sync.Mutex{}
		l.locks[slotNum] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
