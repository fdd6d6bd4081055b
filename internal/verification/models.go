package verification

import (
	"errors"
	"fmt"
	"time"
)

// Domain validation errors returned by CorrelationToken methods. Stores
// translate these to sentinel errors at their boundary.
var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenConsumed = errors.New("token already consumed")
)

// CorrelationToken is the single-use handle that links a chat subject to one
// in-flight external authentication attempt. It is exclusively owned by the
// token store; nothing else mutates it.
type CorrelationToken struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// ValidForConsume reports whether the token can still fund a verification at
// the given instant.
func (t *CorrelationToken) ValidForConsume(now time.Time) error {
	if t.Consumed {
		return ErrTokenConsumed
	}
	if !now.Before(t.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// MarkConsumed performs the one-way false→true transition. Tokens are never
// un-consumed, not even when downstream validation rejects the identity.
func (t *CorrelationToken) MarkConsumed() {
	t.Consumed = true
}

// Expired reports whether the token's TTL has elapsed at the given instant.
func (t *CorrelationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// VerifiedIdentity records the outcome of a successful verification. It is
// written only inside a successful complete-auth; the email always satisfies
// the configured domain policy once persisted.
type VerifiedIdentity struct {
	SubjectID  string    `json:"subject_id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}

// RejectReason classifies why a verification attempt was refused. Reasons are
// terminal for the attempt; the subject must request a fresh link.
type RejectReason string

const (
	ReasonInvalidToken        RejectReason = "invalid_token"
	ReasonExpiredToken        RejectReason = "expired_token"
	ReasonAlreadyConsumed     RejectReason = "already_consumed"
	ReasonDomainNotAllowed    RejectReason = "domain_not_allowed"
	ReasonMalformedIdentity   RejectReason = "malformed_identity"
	ReasonProvisioningFailure RejectReason = "provisioning_failure"
	ReasonStorageError        RejectReason = "storage_error"
)

// RejectedError carries a rejection reason across service boundaries while
// keeping the underlying cause available for logs.
type RejectedError struct {
	Reason RejectReason
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verification rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("verification rejected (%s)", e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Reject wraps err with a rejection reason.
func Reject(reason RejectReason, err error) error {
	return &RejectedError{Reason: reason, Err: err}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (RejectReason, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
