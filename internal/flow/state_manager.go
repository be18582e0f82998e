package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetCurrentState retrieves the current state for a participant in a flow.
func (sm *StoreBasedStateManager) GetCurrentState(ctx context.Context, participantID string, flowType models.FlowType) (models.StateType, error) {
	slog.Debug("StateManager GetCurrentState", "participantID", participantID, "flowType", flowType)

	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager GetCurrentState error", "error", err, "participantID", participantID, "flowType", flowType)
		return "", err
	}

	if flowState == nil {
		slog.Debug("StateManager GetCurrentState not found", "participantID", participantID, "flowType", flowType)
		return "", nil
	}

	return flowState.CurrentState, nil
}

// SetCurrentState updates the current state for a participant in a flow.
func (sm *StoreBasedStateManager) SetCurrentState(ctx context.Context, participantID string, flowType models.FlowType, state models.StateType) error {
	slog.Debug("StateManager SetCurrentState", "participantID", participantID, "flowType", flowType, "state", state)

	return sm.update(participantID, flowType, func(fs *models.FlowState) {
		fs.CurrentState = state
	})
}

// GetStateData retrieves additional data associated with the participant's state.
func (sm *StoreBasedStateManager) GetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey) (string, error) {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager GetStateData error", "error", err, "participantID", participantID, "flowType", flowType, "key", key)
		return "", err
	}

	if flowState == nil || flowState.StateData == nil {
		return "", nil
	}
	return flowState.StateData[key], nil
}

// SetStateDataBatch stores several keys with a single save, so either all of them land or none do.
func (sm *StoreBasedStateManager) SetStateDataBatch(ctx context.Context, participantID string, flowType models.FlowType, data map[models.DataKey]string) error {
	slog.Debug("StateManager SetStateDataBatch", "participantID", participantID, "flowType", flowType, "keys", len(data))

	return sm.update(participantID, flowType, func(fs *models.FlowState) {
		for key, value := range data {
			if value == "" {
				delete(fs.StateData, key)
				continue
			}
			fs.StateData[key] = value
		}
	})
}

// GetFlowState returns the persisted record for a participant.
func (sm *StoreBasedStateManager) GetFlowState(ctx context.Context, participantID string, flowType models.FlowType) (*models.FlowState, error) {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager GetFlowState error", "error", err, "participantID", participantID, "flowType", flowType)
		return nil, err
	}
	return flowState, nil
}

// TransitionState transitions from one state to another.
func (sm *StoreBasedStateManager) TransitionState(ctx context.Context, participantID string, flowType models.FlowType, fromState, toState models.StateType) error {
	slog.Debug("StateManager TransitionState", "participantID", participantID, "flowType", flowType, "from", fromState, "to", toState)

	currentState, err := sm.GetCurrentState(ctx, participantID, flowType)
	if err != nil {
		return err
	}

	if currentState != fromState {
		err := fmt.Errorf("invalid state transition: expected %s, current is %s", fromState, currentState)
		slog.Error("StateManager TransitionState invalid transition", "error", err, "participantID", participantID, "flowType", flowType, "expected", fromState, "current", currentState)
		return err
	}

	if err := sm.SetCurrentState(ctx, participantID, flowType, toState); err != nil {
		return err
	}

	slog.Info("StateManager TransitionState succeeded", "participantID", participantID, "flowType", flowType, "from", fromState, "to", toState)
	return nil
}

// ResetState removes all state data for a participant in a flow.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, participantID string, flowType models.FlowType) error {
	slog.Debug("StateManager ResetState", "participantID", participantID, "flowType", flowType)

	if err := sm.store.DeleteFlowState(participantID, flowType); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "participantID", participantID, "flowType", flowType)
		return err
	}

	slog.Info("StateManager ResetState succeeded", "participantID", participantID, "flowType", flowType)
	return nil
}

// update loads the participant's record (creating it if missing), applies fn and saves it.
func (sm *StoreBasedStateManager) update(participantID string, flowType models.FlowType, fn func(*models.FlowState)) error {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		slog.Error("StateManager update get error", "error", err, "participantID", participantID, "flowType", flowType)
		return err
	}

	now := time.Now()
	if flowState == nil {
		flowState = &models.FlowState{
			ParticipantID: participantID,
			FlowType:      flowType,
			CreatedAt:     now,
		}
	}
	if flowState.StateData == nil {
		flowState.StateData = make(map[models.DataKey]string)
	}
	fn(flowState)
	flowState.UpdatedAt = now

	if err := sm.store.SaveFlowState(*flowState); err != nil {
		slog.Error("StateManager update save error", "error", err, "participantID", participantID, "flowType", flowType)
		return err
	}
	return nil
}
