// Package events defines the payloads exchanged on the save bus between the
// orchestrator and the participating subsystems.
package events

import (
	"time"

	"github.com/dyluth/stash/pkg/bus"
)

const (
	KindSaveRequest  bus.Kind = "save_request"
	KindSaveResponse bus.Kind = "save_response"
	KindLoadDelivery bus.Kind = "load_delivery"
	KindSaveComplete bus.Kind = "save_complete"
	KindLoadComplete bus.Kind = "load_complete"
)

// SaveRequest is broadcast once per save operation. Every registered
// participant is expected to answer with exactly one SaveResponse.
type SaveRequest struct {
	SaveSlot        int       `json:"save_slot"`
	OperationID     string    `json:"operation_id"`
	RequestTime     time.Time `json:"request_time"`
	ExpectedSystems int       `json:"expected_systems"` // 0 = open-ended, finalized at end of tick
}

// SaveResponse carries one subsystem's serialized state for an operation.
type SaveResponse struct {
	SystemName   string    `json:"system_name"`
	SaveData     string    `json:"save_data"`
	TotalSystems int       `json:"total_systems"`
	ResponseTime time.Time `json:"response_time"`
	OperationID  string    `json:"operation_id"`
	Success      bool      `json:"success"`
}

// LoadDelivery scatters a loaded package. Each subsystem picks its own entry
// out of SystemData by name.
type LoadDelivery struct {
	SaveSlot    int               `json:"save_slot"`
	SystemData  map[string]string `json:"system_data"`
	SaveTime    time.Time         `json:"save_time"`
	OperationID string            `json:"operation_id"`
}

// SaveComplete is the terminal event of a save operation. ErrorMessage is
// empty exactly when Success is true.
type SaveComplete struct {
	SaveSlot     int       `json:"save_slot"`
	Success      bool      `json:"success"`
	SystemsSaved int       `json:"systems_saved"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SaveTime     time.Time `json:"save_time"`
	OperationID  string    `json:"operation_id"`
}

// LoadComplete is the terminal event of a load operation. Warnings lists
// entries that could not be decoded but did not abort the load.
type LoadComplete struct {
	SaveSlot      int       `json:"save_slot"`
	Success       bool      `json:"success"`
	SystemsLoaded int       `json:"systems_loaded"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	SaveTime      time.Time `json:"save_time"`
	OperationID   string    `json:"operation_id"`
	Warnings      []string  `json:"warnings,omitempty"`
}

func (SaveRequest) Kind() bus.Kind  { return KindSaveRequest }
func (SaveResponse) Kind() bus.Kind { return KindSaveResponse }
func (LoadDelivery) Kind() bus.Kind { return KindLoadDelivery }
func (SaveComplete) Kind() bus.Kind { return KindSaveComplete }
func (LoadComplete) Kind() bus.Kind { return KindLoadComplete }
