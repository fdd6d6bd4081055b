// Package identity validates externally asserted emails against the campus
// domain policy and derives cohort/track attributes from the local part.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDomainNotAllowed marks an email outside the configured domain.
	ErrDomainNotAllowed = errors.New("email domain not allowed")
	// ErrMalformed marks an email whose local part cannot carry the
	// expected cohort and track segments.
	ErrMalformed = errors.New("malformed email local part")
)

const (
	cohortLen = 4
	trackLen  = 4

	// UnknownTrack labels track codes absent from the static table. It is a
	// label, never an error: unrecognized programmes still verify.
	UnknownTrack = "UNKNOWN"
)

// trackLabels is the static code→label table for programme tracks.
var trackLabels = map[string]string{
	"KUCP": "CSE",
	"KUEC": "ECE",
	"KUAD": "AIDE",
}

// Attributes are derived deterministically from a verified email; identical
// emails always yield identical attributes.
type Attributes struct {
	// Username is the email local part, used as the display name.
	Username string
	// Cohort is the admission-batch code, e.g. "2024".
	Cohort string
	// Track is the programme label, e.g. "CSE", or UnknownTrack.
	Track string
}

// Gate checks asserted emails against one allowed institutional domain.
type Gate struct {
	domain string
}

// NewGate builds a gate for the given domain, e.g. "iiitkota.ac.in".
func NewGate(domain string) *Gate {
	return &Gate{domain: strings.ToLower(strings.TrimPrefix(domain, "@"))}
}

// ValidateDomain accepts emails whose domain part equals the allowed domain.
// The domain part is matched case-insensitively per email semantics; the
// local part is left untouched.
func (g *Gate) ValidateDomain(email string) error {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("email %q: %w", email, ErrMalformed)
	}
	if !strings.EqualFold(email[at+1:], g.domain) {
		return fmt.Errorf("email domain %q: %w", email[at+1:], ErrDomainNotAllowed)
	}
	return nil
}

// DeriveAttributes splits the email local part into fixed-width segments:
// the first cohortLen characters are the cohort code, the next trackLen
// (case-normalized) are the track code looked up in the static table. A local
// part too short for both segments is malformed rather than truncated.
func DeriveAttributes(email string) (Attributes, error) {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return Attributes{}, fmt.Errorf("email %q: %w", email, ErrMalformed)
	}
	local := email[:at]
	if len(local) < cohortLen+trackLen {
		return Attributes{}, fmt.Errorf("local part %q too short: %w", local, ErrMalformed)
	}

	cohort := local[:cohortLen]
	code := strings.ToUpper(local[cohortLen : cohortLen+trackLen])
	track, ok := trackLabels[code]
	if !ok {
		track = UnknownTrack
	}

	return Attributes{
		Username: local,
		Cohort:   cohort,
		Track:    track,
	}, nil
}
