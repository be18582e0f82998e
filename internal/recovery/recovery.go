// Package recovery restores in-process state after DASSPipe restarts.
//
// Sessions live in the store, but inbound hooks and reminder timers live in
// memory. Components implement Recoverable and the Manager calls them once at
// startup, handing them a Registry with the store and the host's callbacks.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/store"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context, registry *Registry) error
}

// HandlerRecoveryFunc re-registers the inbound hook for one participant.
type HandlerRecoveryFunc func(participantID string, flowType models.FlowType) error

// Registry provides services that components can use during recovery
type Registry struct {
	store               store.Store
	handlerRecoveryFunc HandlerRecoveryFunc
}

// NewRegistry creates a registry over st.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st}
}

// Store provides access to the store for recovery operations
func (r *Registry) Store() store.Store {
	return r.store
}

// RecoverResponseHandler asks the host to restore the participant's inbound hook.
func (r *Registry) RecoverResponseHandler(participantID string, flowType models.FlowType) error {
	if r.handlerRecoveryFunc == nil {
		return fmt.Errorf("no response handler recovery registered")
	}
	return r.handlerRecoveryFunc(participantID, flowType)
}

// Manager orchestrates recovery of all registered components
type Manager struct {
	registry     *Registry
	recoverables []Recoverable
}

// NewManager creates a new recovery manager
func NewManager(st store.Store) *Manager {
	return &Manager{registry: NewRegistry(st)}
}

// RegisterRecoverable adds a component that can be recovered
func (m *Manager) RegisterRecoverable(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RegisterHandlerRecovery registers the response handler recovery infrastructure
func (m *Manager) RegisterHandlerRecovery(fn HandlerRecoveryFunc) {
	m.registry.handlerRecoveryFunc = fn
}

// RecoverAll runs every component's recovery. A failing component does not
// stop the others; the returned error counts the failures.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Recovery.RecoverAll: starting", "components", len(m.recoverables))

	var failed int
	for _, r := range m.recoverables {
		if err := r.RecoverState(ctx, m.registry); err != nil {
			slog.Error("Recovery.RecoverAll: component recovery failed", "error", err, "component", fmt.Sprintf("%T", r))
			failed++
		}
	}

	slog.Info("Recovery.RecoverAll: completed", "recovered", len(m.recoverables)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.recoverables))
	}
	return nil
}
