package identity

import (
	"context"

	"campusverify/internal/verification"
)

// Store persists verification outcomes keyed by chat subject id.
//
// Error contract: Find returns sentinel.ErrNotFound (wrapped) when no record
// exists; infrastructure failures are returned wrapped with context.
type Store interface {
	// Upsert records a successful verification, replacing any previous
	// record for the subject.
	Upsert(ctx context.Context, rec *verification.VerifiedIdentity) error

	// Find returns the current record for the subject.
	Find(ctx context.Context, subjectID string) (*verification.VerifiedIdentity, error)
}
