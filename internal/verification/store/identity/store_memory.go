package identity

import (
	"context"
	"fmt"
	"sync"

	"campusverify/internal/verification"
	"campusverify/pkg/platform/sentinel"
)

// InMemoryStore keeps verified identities in a map for tests and
// single-instance deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*verification.VerifiedIdentity
}

// NewInMemory constructs an empty in-memory identity store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*verification.VerifiedIdentity)}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec *verification.VerifiedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.records[rec.SubjectID] = &copied
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, subjectID string) (*verification.VerifiedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subjectID]
	if !ok {
		return nil, fmt.Errorf("verified identity not found: %w", sentinel.ErrNotFound)
	}
	copied := *rec
	return &copied, nil
}
