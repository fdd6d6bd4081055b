package token

import (
	"context"
	"time"

	"campusverify/internal/verification"
)

// DefaultTTL bounds how long a verification link stays usable.
const DefaultTTL = 5 * time.Minute

// Store is the correlation-token store.
//
// Error contract:
// - Peek and ConsumeIfValid return sentinel.ErrNotFound for unknown ids,
//   sentinel.ErrExpired past TTL, and (ConsumeIfValid only)
//   sentinel.ErrAlreadyUsed for replays.
// - Infrastructure failures are returned wrapped with context.
type Store interface {
	// Issue creates a fresh single-use token bound to subjectID.
	Issue(ctx context.Context, subjectID string) (*verification.CorrelationToken, error)

	// Peek is a non-mutating existence and expiry check, used to
	// short-circuit dead links before starting the external redirect. It
	// does not guarantee the token is still valid at consumption time;
	// ConsumeIfValid re-checks under its own guard.
	Peek(ctx context.Context, id string) (*verification.CorrelationToken, error)

	// ConsumeIfValid atomically transitions the token to consumed iff it is
	// unconsumed and unexpired. Under any number of concurrent calls with
	// the same id exactly one succeeds; the rest observe ErrAlreadyUsed.
	ConsumeIfValid(ctx context.Context, id string) (*verification.CorrelationToken, error)

	// DeleteExpired removes tokens past their TTL. Expiry never depends on
	// sweep cadence: ConsumeIfValid re-checks ExpiresAt itself.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
