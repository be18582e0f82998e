// Package store provides storage backends for DASSPipe.
//
// It includes an in-memory store and SQLite/PostgreSQL stores for delivery
// receipts, inbound responses, per-participant flow state and inbound dedup.
package store

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/models"
)

// Store defines the persistence operations DASSPipe relies on.
type Store interface {
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	// SaveFlowState stores or replaces the flow state for a participant.
	SaveFlowState(state models.FlowState) error
	// GetFlowState returns nil, nil when no state exists.
	GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error)
	DeleteFlowState(participantID string, flowType models.FlowType) error
	// ListParticipantsInState returns, sorted, every participant whose flow is in state.
	ListParticipantsInState(flowType models.FlowType, state models.StateType) ([]string, error)

	Close() error
}

// Compile-time checks that every backend implements Store and DedupRepo.
var (
	_ Store     = (*InMemoryStore)(nil)
	_ Store     = (*SQLiteStore)(nil)
	_ Store     = (*PostgresStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

type flowKey struct {
	participantID string
	flowType      models.FlowType
}

// InMemoryStore is a simple in-memory store, used when no DSN is configured and in tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	receipts   []models.Receipt
	responses  []models.Response
	flowStates map[flowKey]models.FlowState
	inbound    map[string]DedupRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flowStates: make(map[flowKey]models.FlowState),
		inbound:    make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.receipts), nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.responses), nil
}

// SaveFlowState stores a copy of state.
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.StateData = maps.Clone(state.StateData)
	s.flowStates[flowKey{state.ParticipantID, state.FlowType}] = state
	slog.Debug("InMemoryStore SaveFlowState succeeded", "participantID", state.ParticipantID, "flowType", state.FlowType, "state", state.CurrentState)
	return nil
}

// GetFlowState returns a copy of the stored state, or nil if none exists.
func (s *InMemoryStore) GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.flowStates[flowKey{participantID, flowType}]
	if !ok {
		return nil, nil
	}
	state.StateData = maps.Clone(state.StateData)
	return &state, nil
}

func (s *InMemoryStore) DeleteFlowState(participantID string, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, flowKey{participantID, flowType})
	return nil
}

func (s *InMemoryStore) ListParticipantsInState(flowType models.FlowType, state models.StateType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []string{}
	for key, fs := range s.flowStates {
		if key.flowType == flowType && fs.CurrentState == state {
			ids = append(ids, key.participantID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inbound[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, participantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = DedupRecord{MessageID: messageID, ParticipantID: participantID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inbound[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.inbound[messageID] = rec
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
