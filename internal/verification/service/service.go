// Package service drives the verification state machine: issue → begin-auth
// → complete-auth → provision → finalize. Each transition has exactly one
// error exit, surfaced as a verification.RejectedError.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"campusverify/internal/identity"
	"campusverify/internal/oauth"
	"campusverify/internal/platform/metrics"
	"campusverify/internal/provision"
	"campusverify/internal/qr"
	"campusverify/internal/verification"
	identitystore "campusverify/internal/verification/store/identity"
	tokenstore "campusverify/internal/verification/store/token"
	"campusverify/pkg/platform/sentinel"
)

// defaultExternalCallTimeout bounds each provisioning sub-operation. A
// timeout counts as that sub-operation's failure, never as a reason to
// re-attempt token consumption.
const defaultExternalCallTimeout = 10 * time.Second

// Provisioner reconciles external role state. Satisfied by
// *provision.Reconciler.
type Provisioner interface {
	EnsureRole(ctx context.Context, name string) (provision.RoleRef, error)
	AssignAndRename(ctx context.Context, subjectID string, roles []provision.RoleRef, displayName string) error
}

// Link is a freshly issued verification link for one subject.
type Link struct {
	URL          string `json:"url"`
	ImageDataURL string `json:"image"`
}

// Result reports a finalized verification. Warnings list provisioning
// sub-operations that failed; they never revert the verification itself.
type Result struct {
	SubjectID  string
	Email      string
	Attributes identity.Attributes
	VerifiedAt time.Time
	Warnings   []string
}

// Service is the verification orchestrator.
type Service struct {
	tokens      tokenstore.Store
	identities  identitystore.Store
	gate        *identity.Gate
	provisioner Provisioner
	provider    oauth.Provider
	metrics     *metrics.Metrics
	log         *log.Logger
	baseURL     string
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExternalCallTimeout bounds provisioning sub-operations.
func WithExternalCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.callTimeout = d }
}

// New wires the orchestrator. baseURL is the externally reachable root of the
// HTTP surface, e.g. "https://verify.example.com".
func New(
	tokens tokenstore.Store,
	identities identitystore.Store,
	gate *identity.Gate,
	provisioner Provisioner,
	provider oauth.Provider,
	m *metrics.Metrics,
	logger *log.Logger,
	baseURL string,
	opts ...Option,
) *Service {
	s := &Service{
		tokens:      tokens,
		identities:  identities,
		gate:        gate,
		provisioner: provisioner,
		provider:    provider,
		metrics:     m,
		log:         logger,
		baseURL:     baseURL,
		callTimeout: defaultExternalCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateVerificationLink issues a fresh correlation token for the subject and
// wraps it in a clickable URL plus a scannable QR image. No domain logic
// lives here.
func (s *Service) CreateVerificationLink(ctx context.Context, subjectID string) (*Link, error) {
	tok, err := s.tokens.Issue(ctx, subjectID)
	if err != nil {
		return nil, verification.Reject(verification.ReasonStorageError, err)
	}

	startURL := fmt.Sprintf("%s/auth/start?token=%s", s.baseURL, url.QueryEscape(tok.ID))
	image, err := qr.DataURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("render verification link: %w", err)
	}

	s.metrics.LinksIssued.Inc()
	return &Link{URL: startURL, ImageDataURL: image}, nil
}

// BeginAuth checks the token exists and is unexpired, then hands back the
// provider redirect URL carrying the token as the opaque state parameter.
// The check is advisory only; ConsumeIfValid re-validates at complete-auth.
func (s *Service) BeginAuth(ctx context.Context, tokenID string) (string, error) {
	if _, err := s.tokens.Peek(ctx, tokenID); err != nil {
		return "", s.rejectTokenError(err)
	}
	return s.provider.AuthCodeURL(tokenID), nil
}

// CompleteAuth atomically consumes the token, validates the asserted email
// against domain policy, and provisions roles plus the display name. The
// consume is the sole exactly-once enforcement point: a token funds at most
// one successful provisioning, and a domain rejection still burns it.
func (s *Service) CompleteAuth(ctx context.Context, tokenID, assertedEmail string) (*Result, error) {
	tok, err := s.tokens.ConsumeIfValid(ctx, tokenID)
	if err != nil {
		return nil, s.rejectTokenError(err)
	}

	if err := s.gate.ValidateDomain(assertedEmail); err != nil {
		return nil, s.rejectIdentityError(assertedEmail, err)
	}
	attrs, err := identity.DeriveAttributes(assertedEmail)
	if err != nil {
		return nil, s.rejectIdentityError(assertedEmail, err)
	}

	warnings := s.provisionSubject(ctx, tok.SubjectID, attrs)

	rec := &verification.VerifiedIdentity{
		SubjectID:  tok.SubjectID,
		Email:      assertedEmail,
		VerifiedAt: s.now(),
	}
	if err := s.identities.Upsert(ctx, rec); err != nil {
		s.metrics.RecordRejection(string(verification.ReasonStorageError))
		return nil, verification.Reject(verification.ReasonStorageError, err)
	}

	s.metrics.VerificationsFinalized.Inc()
	s.log.Printf("verified subject=%s email=%s cohort=%s track=%s warnings=%d",
		tok.SubjectID, assertedEmail, attrs.Cohort, attrs.Track, len(warnings))

	return &Result{
		SubjectID:  tok.SubjectID,
		Email:      assertedEmail,
		Attributes: attrs,
		VerifiedAt: rec.VerifiedAt,
		Warnings:   warnings,
	}, nil
}

// provisionSubject ensures the cohort and track roles and applies them with
// the display name. Sub-failures are reported, logged, and counted, but the
// identity itself stays confirmed; nothing is retried automatically.
func (s *Service) provisionSubject(ctx context.Context, subjectID string, attrs identity.Attributes) []string {
	var warnings []string
	var roles []provision.RoleRef

	for _, name := range []string{attrs.Cohort, attrs.Track} {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		role, err := s.provisioner.EnsureRole(callCtx, name)
		cancel()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ensure role %q: %v", name, err))
			continue
		}
		roles = append(roles, role)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	err := s.provisioner.AssignAndRename(callCtx, subjectID, roles, attrs.Username)
	cancel()
	if err != nil {
		var partial *provision.PartialFailureError
		if errors.As(err, &partial) {
			warnings = append(warnings, partial.Failures...)
		} else {
			warnings = append(warnings, fmt.Sprintf("assign roles: %v", err))
		}
	}

	for _, w := range warnings {
		s.metrics.ProvisioningFailures.Inc()
		s.log.Printf("provisioning sub-failure subject=%s: %s", subjectID, w)
	}
	return warnings
}

// rejectTokenError translates store sentinels into rejection reasons.
func (s *Service) rejectTokenError(err error) error {
	reason := verification.ReasonStorageError
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		reason = verification.ReasonInvalidToken
	case errors.Is(err, sentinel.ErrExpired):
		reason = verification.ReasonExpiredToken
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		reason = verification.ReasonAlreadyConsumed
	}
	s.metrics.RecordRejection(string(reason))
	return verification.Reject(reason, err)
}

// rejectIdentityError translates gate errors into rejection reasons. The
// token is already consumed by this point and is deliberately not restored.
func (s *Service) rejectIdentityError(email string, err error) error {
	reason := verification.ReasonMalformedIdentity
	if errors.Is(err, identity.ErrDomainNotAllowed) {
		reason = verification.ReasonDomainNotAllowed
	}
	s.metrics.RecordRejection(string(reason))
	s.log.Printf("identity rejected email=%s reason=%s", email, reason)
	return verification.Reject(reason, err)
}
