package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/store"
)

// Mock recoverable for testing
type mockRecoverable struct {
	recoverError  error
	recoverCalled bool
	participants  []string
}

func (m *mockRecoverable) RecoverState(ctx context.Context, registry *Registry) error {
	m.recoverCalled = true
	if m.recoverError != nil {
		return m.recoverError
	}
	for _, p := range m.participants {
		if err := registry.RecoverResponseHandler(p, models.FlowTypeDASS21); err != nil {
			return err
		}
	}
	return nil
}

func TestRegistry_NoHandlerRecovery(t *testing.T) {
	st := store.NewInMemoryStore()
	registry := NewRegistry(st)
	if registry.Store() != st {
		t.Error("expected registry to expose its store")
	}
	if err := registry.RecoverResponseHandler("p1", models.FlowTypeDASS21); err == nil {
		t.Error("expected error without a registered handler recovery")
	}
}

func TestManager_RecoverAll(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())

	var restored []string
	m.RegisterHandlerRecovery(func(participantID string, flowType models.FlowType) error {
		if flowType != models.FlowTypeDASS21 {
			t.Errorf("unexpected flow type %s", flowType)
		}
		restored = append(restored, participantID)
		return nil
	})

	a := &mockRecoverable{participants: []string{"p1", "p2"}}
	b := &mockRecoverable{participants: []string{"p3"}}
	m.RegisterRecoverable(a)
	m.RegisterRecoverable(b)

	if err := m.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}
	if !a.recoverCalled || !b.recoverCalled {
		t.Error("expected every component to be recovered")
	}
	if len(restored) != 3 {
		t.Errorf("expected 3 hooks restored, got %v", restored)
	}
}

func TestManager_RecoverAllContinuesAfterFailure(t *testing.T) {
	m := NewManager(store.NewInMemoryStore())
	failing := &mockRecoverable{recoverError: errors.New("boom")}
	healthy := &mockRecoverable{}
	m.RegisterRecoverable(failing)
	m.RegisterRecoverable(healthy)

	if err := m.RecoverAll(context.Background()); err == nil {
		t.Error("expected error from failing component")
	}
	if !healthy.recoverCalled {
		t.Error("a failing component must not stop the rest")
	}
}

func TestManager_Empty(t *testing.T) {
	if err := NewManager(store.NewInMemoryStore()).RecoverAll(context.Background()); err != nil {
		t.Errorf("empty recovery should succeed, got %v", err)
	}
}
