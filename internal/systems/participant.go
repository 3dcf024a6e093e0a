// Package systems adapts game subsystems to the save bus.
//
// A subsystem implements Saveable and is attached with Attach. The returned
// Participant answers every SaveRequest with one SaveResponse carrying the
// subsystem's captured state, and restores the subsystem from its own entry
// of every LoadDelivery.
package systems

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/events"
)

// Saveable is the contract a subsystem satisfies to take part in saves.
type Saveable interface {
	// SystemName is the unique key of the subsystem inside a save package.
	SystemName() string

	// CaptureState serializes the current state into an opaque blob.
	CaptureState() (string, error)

	// RestoreState replaces the current state with the content of blob.
	RestoreState(blob string) error
}

// Registrar is the participant registry of the orchestrator.
type Registrar interface {
	Register(name string) error
	Unregister(name string)
}

// Option configures a Participant.
type Option func(*Participant)

// Deferred makes the participant queue save requests until Flush, as a
// subsystem answering on its next tick would.
func Deferred() Option {
	return func(p *Participant) {
		p.deferred = true
	}
}

// Participant connects one Saveable to the bus.
type Participant struct {
	bus      *bus.Bus
	reg      Registrar
	s        Saveable
	name     string
	deferred bool

	mu       sync.Mutex
	queue    []events.SaveRequest
	loadErr  error
	detached bool
	unsubs   []func()
}

// Attach registers s with reg and subscribes it to save requests and load
// deliveries on b.
func Attach(b *bus.Bus, reg Registrar, s Saveable, opts ...Option) (*Participant, error) {
	name := s.SystemName()
	if name == "" {
		return nil, fmt.Errorf("system name cannot be empty")
	}

	p := &Participant{bus: b, reg: reg, s: s, name: name}
	for _, opt := range opts {
		opt(p)
	}

	if reg != nil {
		if err := reg.Register(name); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	p.unsubs = append(p.unsubs,
		bus.Subscribe(b, p.onSaveRequest),
		bus.Subscribe(b, p.onLoadDelivery),
	)
	return p, nil
}

// Name returns the system name.
func (p *Participant) Name() string {
	return p.name
}

// Detach unsubscribes from the bus and unregisters from the registry.
func (p *Participant) Detach() {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	p.detached = true
	p.queue = nil
	unsubs := p.unsubs
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if p.reg != nil {
		p.reg.Unregister(p.name)
	}
}

// Flush answers every queued save request and returns how many were answered.
func (p *Participant) Flush() int {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, req := range queue {
		p.respond(req)
	}
	return len(queue)
}

// Queued returns the number of save requests waiting for Flush.
func (p *Participant) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// LastLoadError returns the error of the most recent restore, if any.
func (p *Participant) LastLoadError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

func (p *Participant) onSaveRequest(req events.SaveRequest) {
	if p.deferred {
		p.mu.Lock()
		p.queue = append(p.queue, req)
		p.mu.Unlock()
		return
	}
	p.respond(req)
}

func (p *Participant) respond(req events.SaveRequest) {
	blob, err := p.capture()
	if err != nil {
		log.Printf("[%s] Failed to capture state for operation %s: %v", p.name, req.OperationID, err)
		blob = ""
	}

	bus.Publish(p.bus, events.SaveResponse{
		SystemName:   p.name,
		SaveData:     blob,
		TotalSystems: req.ExpectedSystems,
		ResponseTime: time.Now().UTC(),
		OperationID:  req.OperationID,
		Success:      err == nil,
	})
}

// capture calls CaptureState, turning a panic into an error.
func (p *Participant) capture() (blob string, err error) {
	defer func() {
		if r := recover(); r != nil {
			blob, err = "", fmt.Errorf("capture panicked: %v", r)
		}
	}()
	return p.s.CaptureState()
}

func (p *Participant) onLoadDelivery(d events.LoadDelivery) {
	blob, ok := d.SystemData[p.name]
	if !ok {
		return
	}

	err := p.s.RestoreState(blob)
	if err != nil {
		log.Printf("[%s] Failed to restore state from slot %d: %v", p.name, d.SaveSlot, err)
	}

	p.mu.Lock()
	p.loadErr = err
	p.mu.Unlock()
}
