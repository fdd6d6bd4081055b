package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campusverify/internal/verification"
	"campusverify/pkg/platform/sentinel"
)

const (
	// Redis key prefix for correlation tokens.
	tokenKeyPrefix = "verify:token:"

	// Consumed tokens linger briefly so replays observe "already used"
	// instead of "not found" before the key expires.
	consumedTombstoneTTL = 10 * time.Minute

	// Bounded retries for optimistic-transaction WATCH conflicts.
	maxConsumeRetries = 5
)

// RedisStore is the Redis-backed token store for distributed deployments.
// Expiry is enforced twice: by key TTL (removal) and by the record's
// ExpiresAt re-checked at consumption time, so validity never depends on
// Redis eviction cadence.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL overrides the default token TTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithRedisClock injects the time source for tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedis constructs a Redis-backed token store. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func tokenKey(id string) string { return tokenKeyPrefix + id }

func (s *RedisStore) Issue(ctx context.Context, subjectID string) (*verification.CorrelationToken, error) {
	now := s.now()
	tok := &verification.CorrelationToken{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	payload, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(tok.ID), payload, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("persist token: %v: %w", err, sentinel.ErrUnavailable)
	}
	return tok, nil
}

func (s *RedisStore) Peek(ctx context.Context, id string) (*verification.CorrelationToken, error) {
	tok, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tok.Expired(s.now()) {
		return nil, fmt.Errorf("correlation token expired: %w", sentinel.ErrExpired)
	}
	return tok, nil
}

// ConsumeIfValid applies the consumed transition inside a WATCH transaction so
// the guard and the write form one conditional update. A concurrent consumer
// invalidates the transaction (redis.TxFailedErr); the loser re-reads on retry
// and then observes the consumed record.
func (s *RedisStore) ConsumeIfValid(ctx context.Context, id string) (*verification.CorrelationToken, error) {
	key := tokenKey(id)

	var consumed *verification.CorrelationToken
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("correlation token not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load token: %v: %w", err, sentinel.ErrUnavailable)
		}

		var tok verification.CorrelationToken
		if err := json.Unmarshal(raw, &tok); err != nil {
			return fmt.Errorf("decode token: %w", err)
		}
		if err := tok.ValidForConsume(s.now()); err != nil {
			return translateTokenError(err)
		}

		tok.MarkConsumed()
		payload, err := json.Marshal(&tok)
		if err != nil {
			return fmt.Errorf("marshal token: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, consumedTombstoneTTL)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = &tok
		return nil
	}

	for attempt := 0; attempt < maxConsumeRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return consumed, nil
	}
	return nil, fmt.Errorf("consume retries exhausted: %w", sentinel.ErrUnavailable)
}

// DeleteExpired is a no-op for Redis; key TTLs remove dead tokens. Validity
// never depends on it (see ConsumeIfValid).
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*verification.CorrelationToken, error) {
	raw, err := s.client.Get(ctx, tokenKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("correlation token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %v: %w", err, sentinel.ErrUnavailable)
	}

	var tok verification.CorrelationToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}
