// Package flow runs the DASS-21 assessment on top of persisted participant state.
//
// It adapts the assessment controller's host primitives to a Store-backed
// StateManager and a message sender, and serialises work per participant.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/models"
)

// StateManager defines the interface for managing flow state.
type StateManager interface {
	// GetCurrentState retrieves the current state for a participant in a flow
	GetCurrentState(ctx context.Context, participantID string, flowType models.FlowType) (models.StateType, error)

	// SetCurrentState updates the current state for a participant in a flow
	SetCurrentState(ctx context.Context, participantID string, flowType models.FlowType, state models.StateType) error

	// GetStateData retrieves additional data associated with the participant's state
	GetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey) (string, error)

	// SetStateDataBatch stores data associated with the participant's state in
	// one save. Empty values remove their keys.
	SetStateDataBatch(ctx context.Context, participantID string, flowType models.FlowType, data map[models.DataKey]string) error

	// GetFlowState returns the whole persisted record, or nil if none exists
	GetFlowState(ctx context.Context, participantID string, flowType models.FlowType) (*models.FlowState, error)

	// TransitionState transitions from one state to another
	TransitionState(ctx context.Context, participantID string, flowType models.FlowType, fromState, toState models.StateType) error

	// ResetState removes all state data for a participant in a flow
	ResetState(ctx context.Context, participantID string, flowType models.FlowType) error
}

// Timer defines the interface for scheduling delayed actions.
type Timer interface {
	// ScheduleAfter schedules a function to run after a delay and returns its id
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// Cancel cancels a scheduled function; unknown ids are ignored
	Cancel(id string) error

	// ListActive returns information about all pending timers
	ListActive() []TimerInfo
}

// Sender delivers text to a participant. messaging.Service satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}
