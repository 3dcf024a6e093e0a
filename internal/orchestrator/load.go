package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/events"
	"github.com/dyluth/stash/pkg/savepkg"
	"github.com/google/uuid"
)

// StartLoad reads slotNum, delivers its content to every subscriber with a
// LoadDelivery and publishes a LoadComplete. A missing or unreadable slot
// publishes a failed LoadComplete and returns the error; no delivery happens.
func (o *Orchestrator) StartLoad(ctx context.Context, slotNum int) (operationID string, err error) {
	operationID = uuid.NewString()

	complete := events.LoadComplete{
		SaveSlot:    slotNum,
		OperationID: operationID,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error while loading: %v", r)
			complete.Success = false
			complete.SystemsLoaded = 0
		}
		if err != nil {
			complete.ErrorMessage = err.Error()
			complete.SaveTime = time.Now().UTC()
			log.Printf("[Orchestrator] Load %s for slot %d failed: %v", operationID, slotNum, err)
		}
		o.logEvent("load_complete", map[string]interface{}{
			"operation_id":   operationID,
			"slot":           slotNum,
			"success":        complete.Success,
			"systems_loaded": complete.SystemsLoaded,
			"warnings":       complete.Warnings,
			"error":          complete.ErrorMessage,
		})
		bus.Publish(o.bus, complete)
	}()

	if slotNum < 0 {
		return operationID, slot.ErrInvalidSlot
	}
	if err := o.reserve(slotNum, operationID); err != nil {
		return operationID, err
	}
	defer o.release(slotNum, operationID)

	data, err := o.readSlot(ctx, slotNum)
	if err != nil {
		if slot.IsNotFound(err) {
			return operationID, fmt.Errorf("slot %d is empty: %w", slotNum, err)
		}
		return operationID, fmt.Errorf("failed to read slot %d: %w", slotNum, err)
	}

	pkg, warnings, err := savepkg.Unmarshal(data, o.codec)
	if err != nil {
		return operationID, fmt.Errorf("failed to parse slot %d: %w", slotNum, err)
	}
	for _, w := range warnings {
		complete.Warnings = append(complete.Warnings, w.Error())
	}

	systemData := pkg.ToMap()
	participants, _ := o.snapshot()
	for _, name := range participants {
		if _, ok := systemData[name]; !ok {
			complete.Warnings = append(complete.Warnings, fmt.Sprintf("no saved data for %s", name))
		}
	}

	complete.SaveTime = pkg.SaveTime
	log.Printf("[Orchestrator] Load %s delivering %d systems from slot %d",
		operationID, len(systemData), slotNum)

	bus.Publish(o.bus, events.LoadDelivery{
		SaveSlot:    slotNum,
		SystemData:  systemData,
		SaveTime:    pkg.SaveTime,
		OperationID: operationID,
	})

	complete.Success = true
	complete.SystemsLoaded = len(systemData)
	return operationID, nil
}

// Delete removes a slot and its backup. A slot with an operation in flight
// cannot be deleted.
func (o *Orchestrator) Delete(ctx context.Context, slotNum int) error {
	id := "delete-" + uuid.NewString()
	if err := o.reserve(slotNum, id); err != nil {
		return err
	}
	defer o.release(slotNum, id)

	unlock := o.locks.lock(slotNum)
	defer unlock()

	if err := o.store.Delete(ctx, slotNum); err != nil {
		return err
	}
	log.Printf("[Orchestrator] Deleted slot %d", slotNum)
	return nil
}

// RestoreBackup swaps a slot with its backup.
func (o *Orchestrator) RestoreBackup(ctx context.Context, slotNum int) error {
	id := "restore-" + uuid.NewString()
	if err := o.reserve(slotNum, id); err != nil {
		return err
	}
	defer o.release(slotNum, id)

	unlock := o.locks.lock(slotNum)
	defer unlock()

	if err := o.store.RestoreBackup(ctx, slotNum); err != nil {
		return err
	}
	log.Printf("[Orchestrator] Restored backup of slot %d", slotNum)
	return nil
}

// Describe returns metadata for a slot.
func (o *Orchestrator) Describe(ctx context.Context, slotNum int) (slot.Info, error) {
	return o.store.Describe(ctx, slotNum)
}

// List describes every non-empty slot.
func (o *Orchestrator) List(ctx context.Context) ([]slot.Info, error) {
	return o.store.List(ctx)
}

func (o *Orchestrator) readSlot(ctx context.Context, slotNum int) ([]byte, error) {
	unlock := o.locks.lock(slotNum)
	defer unlock()
	return o.store.Read(ctx, slotNum)
}
