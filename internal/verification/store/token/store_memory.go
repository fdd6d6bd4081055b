package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusverify/internal/verification"
	"campusverify/pkg/platform/sentinel"
)

// InMemoryStore keeps correlation tokens in a mutex-guarded map. Suitable for
// tests and single-instance deployments; RedisStore is the distributed
// implementation.
type InMemoryStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]*verification.CorrelationToken
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithTTL overrides the default token TTL.
func WithTTL(ttl time.Duration) InMemoryOption {
	return func(s *InMemoryStore) { s.ttl = ttl }
}

// WithClock injects the time source so tests avoid hidden time.Now calls.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) { s.now = now }
}

// NewInMemory constructs an empty in-memory token store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		ttl:    DefaultTTL,
		now:    time.Now,
		tokens: make(map[string]*verification.CorrelationToken),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryStore) Issue(_ context.Context, subjectID string) (*verification.CorrelationToken, error) {
	now := s.now()
	tok := &verification.CorrelationToken{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.ID] = tok
	copied := *tok
	return &copied, nil
}

func (s *InMemoryStore) Peek(_ context.Context, id string) (*verification.CorrelationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("correlation token not found: %w", sentinel.ErrNotFound)
	}
	if tok.Expired(s.now()) {
		return nil, fmt.Errorf("correlation token expired: %w", sentinel.ErrExpired)
	}
	copied := *tok
	return &copied, nil
}

// ConsumeIfValid holds the write lock across the check-and-mark so concurrent
// callers serialize on a single conditional update. Exactly one caller wins;
// the token stays in the map so replays observe ErrAlreadyUsed rather than
// ErrNotFound until the sweep removes it.
func (s *InMemoryStore) ConsumeIfValid(_ context.Context, id string) (*verification.CorrelationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("correlation token not found: %w", sentinel.ErrNotFound)
	}
	if err := tok.ValidForConsume(s.now()); err != nil {
		return nil, translateTokenError(err)
	}

	tok.MarkConsumed()
	copied := *tok
	return &copied, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, tok := range s.tokens {
		if tok.Expired(now) {
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// translateTokenError converts domain errors from ValidForConsume to sentinel
// errors per the store boundary contract.
func translateTokenError(err error) error {
	switch err {
	case nil:
		return nil
	case verification.ErrTokenExpired:
		return fmt.Errorf("%s: %w", err, sentinel.ErrExpired)
	case verification.ErrTokenConsumed:
		return fmt.Errorf("%s: %w", err, sentinel.ErrAlreadyUsed)
	default:
		return fmt.Errorf("%s: %w", err, sentinel.ErrInvalidState)
	}
}
