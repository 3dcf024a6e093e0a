package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyluth/stash/internal/aggregator"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/events"
	"github.com/dyluth/stash/pkg/savepkg"
	"github.com/google/uuid"
)

// SaveOption adjusts a single save.
type SaveOption func(*saveConfig)

type saveConfig struct {
	overwrite bool
}

// WithOverwrite allows the save to replace an occupied slot. The replaced
// content is kept as the slot's backup.
func WithOverwrite() SaveOption {
	return func(c *saveConfig) {
		c.overwrite = true
	}
}

// saveOp is the orchestrator-side context of one save.
type saveOp struct {
	ctx      context.Context
	id       string
	slot     int
	scene    string
	expected []string
	mode     slot.WriteMode
}

// StartSave broadcasts a save request for slotNum and returns its operation
// id without waiting for the responses. The outcome is published later as a
// SaveComplete. A rejected request returns an error and also publishes a
// failed SaveComplete.
func (o *Orchestrator) StartSave(ctx context.Context, slotNum int, opts ...SaveOption) (string, error) {
	cfg := saveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	operationID := uuid.NewString()

	if slotNum < 0 {
		return operationID, o.rejectSave(slotNum, operationID, slot.ErrInvalidSlot)
	}
	if err := o.reserve(slotNum, operationID); err != nil {
		return operationID, o.rejectSave(slotNum, operationID, err)
	}

	if !cfg.overwrite {
		exists, err := o.store.Exists(ctx, slotNum)
		if err != nil {
			o.release(slotNum, operationID)
			return operationID, o.rejectSave(slotNum, operationID, fmt.Errorf("failed to check slot: %w", err))
		}
		if exists {
			o.release(slotNum, operationID)
			return operationID, o.rejectSave(slotNum, operationID,
				fmt.Errorf("slot %d: %w (delete it first or save with overwrite)", slotNum, slot.ErrSlotOccupied))
		}
	}

	participants, scene := o.snapshot()
	op := &saveOp{
		ctx:      context.WithoutCancel(ctx),
		id:       operationID,
		slot:     slotNum,
		scene:    scene,
		expected: participants,
		mode:     slot.CreateOnly,
	}
	if cfg.overwrite {
		op.mode = slot.Replace
	}

	requestTime := time.Now().UTC()
	err := o.agg.Open(aggregator.Operation{
		ID:          operationID,
		Slot:        slotNum,
		Expected:    participants,
		RequestTime: requestTime,
	}, func(res aggregator.Result) { o.finishSave(op, res) })
	if err != nil {
		o.release(slotNum, operationID)
		return operationID, o.rejectSave(slotNum, operationID, err)
	}

	log.Printf("[Orchestrator] Save %s started for slot %d (%d systems expected)",
		operationID, slotNum, len(participants))
	o.logEvent("save_started", map[string]interface{}{
		"operation_id":     operationID,
		"slot":             slotNum,
		"expected_systems": participants,
	})

	err = o.broadcast(events.SaveRequest{
		SaveSlot:        slotNum,
		OperationID:     operationID,
		RequestTime:     requestTime,
		ExpectedSystems: len(participants),
	})
	return operationID, err
}

// broadcast publishes a save request. A handler that panics cancels the
// operation, which publishes its failed SaveComplete and frees the slot.
func (o *Orchestrator) broadcast(req events.SaveRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save request handler panicked: %v", r)
			log.Printf("[Orchestrator] Save %s aborted: %v", req.OperationID, err)
			if cerr := o.agg.Cancel(req.OperationID, err.Error()); cerr != nil {
				log.Printf("[Orchestrator] Save %s already finished: %v", req.OperationID, cerr)
			}
		}
	}()

	bus.Publish(o.bus, req)
	return nil
}

// handleResponse feeds bus responses into the aggregator.
func (o *Orchestrator) handleResponse(resp events.SaveResponse) {
	err := o.agg.Register(resp)
	switch {
	case err == nil:
	case errors.Is(err, aggregator.ErrUnknownOperation):
		log.Printf("[Orchestrator] Ignoring response from %s: %v", resp.SystemName, err)
	case errors.Is(err, aggregator.ErrDuplicateResponse):
		log.Printf("[Orchestrator] Dropping duplicate response: %v", err)
		o.logEvent("duplicate_response", map[string]interface{}{
			"operation_id": resp.OperationID,
			"system":       resp.SystemName,
		})
	default:
		log.Printf("[Orchestrator] Rejected response from %s: %v", resp.SystemName, err)
	}
}

// finishSave runs once per save when the aggregator reaches a terminal state.
func (o *Orchestrator) finishSave(op *saveOp, res aggregator.Result) {
	defer o.release(op.slot, op.id)

	complete := events.SaveComplete{
		SaveSlot:    op.slot,
		OperationID: op.id,
		SaveTime:    res.FinishedAt.UTC(),
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				complete.Success = false
				complete.ErrorMessage = fmt.Sprintf("internal error while saving: %v", r)
			}
		}()
		o.persist(op, res, &complete)
	}()

	if complete.Success {
		log.Printf("[Orchestrator] Save %s complete: %d systems written to slot %d",
			op.id, complete.SystemsSaved, op.slot)
	} else {
		log.Printf("[Orchestrator] Save %s failed: %s", op.id, complete.ErrorMessage)
	}
	o.logEvent("save_complete", map[string]interface{}{
		"operation_id":  op.id,
		"slot":          op.slot,
		"state":         string(res.State),
		"success":       complete.Success,
		"systems_saved": complete.SystemsSaved,
		"missing":       res.Missing,
		"error":         complete.ErrorMessage,
	})

	bus.Publish(o.bus, complete)
}

// persist builds and writes the package, filling in complete.
func (o *Orchestrator) persist(op *saveOp, res aggregator.Result, complete *events.SaveComplete) {
	if res.State == aggregator.StateCancelled {
		complete.ErrorMessage = fmt.Sprintf("save cancelled: %s", res.Reason)
		return
	}

	entries := make([]savepkg.Entry, 0, len(res.Responses))
	for _, r := range res.Responses {
		if r.Success {
			entries = append(entries, savepkg.Entry{Name: r.SystemName, Data: r.SaveData})
		}
	}

	pkg := savepkg.FromEntries(op.slot, op.scene, entries)
	pkg.SaveTime = complete.SaveTime
	pkg.GameVersion = o.opts.GameVersion
	pkg.OperationID = op.id
	pkg.TotalSystems = len(op.expected)
	if pkg.TotalSystems == 0 {
		pkg.TotalSystems = len(res.Responses)
	}

	var problems []string
	if res.State == aggregator.StateTimedOut {
		problems = append(problems, fmt.Sprintf("timed out after %s with %d/%d systems (missing: %s)",
			o.opts.Timeout, len(res.Responses), len(op.expected), strings.Join(res.Missing, ", ")))
		if o.opts.PartialSaves == PartialDiscard {
			complete.ErrorMessage = strings.Join(problems, "; ") + "; partial save discarded"
			return
		}
	}
	if len(res.Failed) > 0 {
		problems = append(problems, fmt.Sprintf("systems reported failure: %s", strings.Join(res.Failed, ", ")))
	}

	data, err := savepkg.Marshal(pkg, o.codec)
	if err != nil {
		complete.ErrorMessage = fmt.Sprintf("failed to build save package: %v", err)
		return
	}

	if err := o.writeSlot(op.ctx, op.slot, data, op.mode); err != nil {
		complete.ErrorMessage = fmt.Sprintf("failed to write slot %d: %v", op.slot, err)
		return
	}

	complete.SystemsSaved = len(pkg.SystemNames)
	if len(problems) > 0 {
		complete.ErrorMessage = "partial save written: " + strings.Join(problems, "; ")
		return
	}
	complete.Success = true
}

func (o *Orchestrator) writeSlot(ctx context.Context, slotNum int, data []byte, mode slot.WriteMode) error {
	unlock := o.locks.lock(slotNum)
	defer unlock()
	return o.store.Write(ctx, slotNum, data, mode)
}

// rejectSave publishes the failed completion for a save that never started
// and returns err for the caller.
func (o *Orchestrator) rejectSave(slotNum int, operationID string, err error) error {
	log.Printf("[Orchestrator] Save %s for slot %d rejected: %v", operationID, slotNum, err)
	bus.Publish(o.bus, events.SaveComplete{
		SaveSlot:     slotNum,
		Success:      false,
		ErrorMessage: err.Error(),
		SaveTime:     time.Now().UTC(),
		OperationID:  operationID,
	})
	return err
}
