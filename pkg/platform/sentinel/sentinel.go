package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and external-system
// adapters return these (optionally wrapped) so services can translate them
// into rejection reasons for the subject.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrExpired: correlation token past its TTL
// - ErrAlreadyUsed: token already consumed by an earlier attempt
// - ErrConflict: external system reports a duplicate on create
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store or external system temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
