// Package aggregator correlates save responses with the operation that
// requested them.
//
// Each operation moves through a small state machine:
//
//	Collecting → Complete | TimedOut | Cancelled
//
// Completion fires when every expected system has responded, or on an explicit
// Finalize for operations opened without an expected set. A wall-clock
// deadline moves an unfinished operation to TimedOut. Terminal states are
// final: later responses for the same operation are rejected.
package aggregator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/stash/pkg/events"
)

var (
	// ErrDuplicateOperation is returned by Open for an id that is live or was used before.
	ErrDuplicateOperation = errors.New("operation id already used")

	// ErrUnknownOperation is returned for responses to unknown or already terminal operations.
	ErrUnknownOperation = errors.New("unknown or finished operation")

	// ErrDuplicateResponse is returned when a system responds twice to one operation.
	ErrDuplicateResponse = errors.New("duplicate response")

	// ErrUnexpectedSystem is returned for a response from a system outside the expected set.
	ErrUnexpectedSystem = errors.New("unexpected system")

	// ErrStillCollecting is returned by Finalize for operations that wait for a known set.
	ErrStillCollecting = errors.New("operation still waiting for expected systems")
)

// State is the lifecycle state of one operation.
type State string

const (
	StateCollecting State = "collecting"
	StateComplete   State = "complete"
	StateTimedOut   State = "timed_out"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether no further responses will be accepted.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateTimedOut || s == StateCancelled
}

// DefaultHistorySize bounds how many finished operation ids are remembered.
const DefaultHistorySize = 256

// Operation describes one outstanding save request.
type Operation struct {
	ID          string
	Slot        int
	Expected    []string // exact participant names; empty means open-ended
	RequestTime time.Time
}

// Result is handed to the completion callback exactly once per operation.
type Result struct {
	Operation  Operation
	State      State
	Responses  []events.SaveResponse // arrival order
	Missing    []string              // expected systems that never responded
	Failed     []string              // systems that responded with Success=false
	Reason     string                // set for Cancelled
	FinishedAt time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithHistorySize sets how many finished operation ids are remembered.
func WithHistorySize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.historySize = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// pending tracks the state of one operation while it is collecting.
type pending struct {
	op        Operation
	expected  map[string]bool
	received  map[string]bool
	responses []events.SaveResponse
	timer     *time.Timer
	onDone    func(Result)
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu          sync.Mutex
	timeout     time.Duration
	ops         map[string]*pending
	finished    map[string]State
	history     []string
	historySize int
	now         func() time.Time
}

// New creates an aggregator. A timeout ≤ 0 disables the deadline.
func New(timeout time.Duration, opts ...Option) *Aggregator {
	a := &Aggregator{
		timeout:     timeout,
		ops:         make(map[string]*pending),
		finished:    make(map[string]State),
		historySize: DefaultHistorySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open starts collecting responses for op. onDone runs once when the
// operation reaches a terminal state. An empty expected set completes only
// through Finalize, the deadline or Cancel.
func (a *Aggregator) Open(op Operation, onDone func(Result)) error {
	if op.ID == "" {
		return fmt.Errorf("operation id cannot be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, live := a.ops[op.ID]; live {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
	}
	if _, done := a.finished[op.ID]; done {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
	}

	if onDone == nil {
		onDone = func(Result) {}
	}
	if op.RequestTime.IsZero() {
		op.RequestTime = a.now()
	}

	p := &pending{
		op:       op,
		expected: make(map[string]bool, len(op.Expected)),
		received: make(map[string]bool),
		onDone:   onDone,
	}
	for _, name := range op.Expected {
		p.expected[name] = true
	}
	a.ops[op.ID] = p

	if a.timeout > 0 {
		id := op.ID
		p.timer = time.AfterFunc(a.timeout, func() { a.expire(id) })
	}
	return nil
}

// Register records one response. It returns ErrUnknownOperation,
// ErrDuplicateResponse or ErrUnexpectedSystem for responses that were not
// counted; callers log these and carry on.
func (a *Aggregator) Register(resp events.SaveResponse) error {
	a.mu.Lock()

	p, ok := a.ops[resp.OperationID]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOperation, resp.OperationID)
	}
	if resp.SystemName == "" {
		a.mu.Unlock()
		return fmt.Errorf("%w: empty system name", ErrUnexpectedSystem)
	}
	if p.received[resp.SystemName] {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s for operation %s", ErrDuplicateResponse, resp.SystemName, resp.OperationID)
	}
	if len(p.expected) > 0 && !p.expected[resp.SystemName] {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s for operation %s", ErrUnexpectedSystem, resp.SystemName, resp.OperationID)
	}

	p.received[resp.SystemName] = true
	p.responses = append(p.responses, resp)

	var result *Result
	if len(p.expected) > 0 && len(p.received) == len(p.expected) {
		result = a.finishLocked(p, StateComplete, "")
	}
	a.mu.Unlock()

	if result != nil {
		p.onDone(*result)
	}
	return nil
}

// Finalize completes an open-ended operation with whatever has arrived. It is
// the end-of-tick signal for operations opened without an expected set.
func (a *Aggregator) Finalize(operationID string) error {
	a.mu.Lock()
	p, ok := a.ops[operationID]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOperation, operationID)
	}
	if len(p.expected) > 0 {
		a.mu.Unlock()
		return ErrStillCollecting
	}
	result := a.finishLocked(p, StateComplete, "")
	a.mu.Unlock()

	p.onDone(*result)
	return nil
}

// FinalizeOpenEnded finalizes every open-ended operation and returns their ids.
func (a *Aggregator) FinalizeOpenEnded() []string {
	a.mu.Lock()
	var done []*pending
	var results []Result
	for _, p := range a.ops {
		if len(p.expected) == 0 {
			done = append(done, p)
		}
	}
	for _, p := range done {
		results = append(results, *a.finishLocked(p, StateComplete, ""))
	}
	a.mu.Unlock()

	ids := make([]string, 0, len(done))
	for i, p := range done {
		p.onDone(results[i])
		ids = append(ids, p.op.ID)
	}
	return ids
}

// Cancel stops collecting for operationID. The callback receives StateCancelled.
func (a *Aggregator) Cancel(operationID, reason string) error {
	a.mu.Lock()
	p, ok := a.ops[operationID]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOperation, operationID)
	}
	result := a.finishLocked(p, StateCancelled, reason)
	a.mu.Unlock()

	p.onDone(*result)
	return nil
}

// State returns the state of operationID and whether the id is known.
func (a *Aggregator) State(operationID string) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.ops[operationID]; ok {
		return StateCollecting, true
	}
	s, ok := a.finished[operationID]
	return s, ok
}

// Responded returns how many responses operationID has accepted so far.
func (a *Aggregator) Responded(operationID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.ops[operationID]; ok {
		return len(p.received)
	}
	return 0
}

// Pending returns the ids of operations still collecting.
func (a *Aggregator) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.ops))
	for id := range a.ops {
		ids = append(ids, id)
	}
	return ids
}

// expire is the deadline callback. It is a no-op when the operation already
// finished; Stop cannot always prevent a timer that is about to fire.
func (a *Aggregator) expire(operationID string) {
	a.mu.Lock()
	p, ok := a.ops[operationID]
	if !ok {
		a.mu.Unlock()
		return
	}
	result := a.finishLocked(p, StateTimedOut, "")
	a.mu.Unlock()

	log.Printf("[Aggregator] Operation %s timed out with %d/%d responses",
		operationID, len(result.Responses), len(p.expected))
	p.onDone(*result)
}

// finishLocked moves p to a terminal state and builds its result. Callers hold a.mu.
func (a *Aggregator) finishLocked(p *pending, state State, reason string) *Result {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(a.ops, p.op.ID)
	a.remember(p.op.ID, state)

	result := &Result{
		Operation:  p.op,
		State:      state,
		Responses:  append([]events.SaveResponse(nil), p.responses...),
		Reason:     reason,
		FinishedAt: a.now(),
	}
	for _, name := range p.op.Expected {
		if !p.received[name] {
			result.Missing = append(result.Missing, name)
		}
	}
	for _, r := range p.responses {
		if !r.Success {
			result.Failed = append(result.Failed, r.SystemName)
		}
	}
	return result
}

func (a *Aggregator) remember(id string, state State) {
	a.finished[id] = state
	a.history = append(a.history, id)
	for len(a.history) > a.historySize {
		delete(a.finished, a.history[0])
		a.history = a.history[1:]
	}
}
