package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campusverify/internal/oauth"
	"campusverify/internal/verification"
	"campusverify/internal/verification/service"
)

// Verifier is the slice of the orchestrator the HTTP layer needs.
type Verifier interface {
	CreateVerificationLink(ctx context.Context, subjectID string) (*service.Link, error)
	BeginAuth(ctx context.Context, tokenID string) (string, error)
	CompleteAuth(ctx context.Context, tokenID, assertedEmail string) (*service.Result, error)
}

// Handler serves the verification HTTP surface.
type Handler struct {
	verifier Verifier
	provider oauth.Provider
	log      *log.Logger
}

// NewHandler wires the handler.
func NewHandler(verifier Verifier, provider oauth.Provider, logger *log.Logger) *Handler {
	return &Handler{verifier: verifier, provider: provider, log: logger}
}

// handleLink drives the token issuer: GET /link/{subjectID} returns the
// verification URL and QR image for the subject.
func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if subjectID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing subject id")
		return
	}

	link, err := h.verifier.CreateVerificationLink(r.Context(), subjectID)
	if err != nil {
		h.log.Printf("generate link failed subject=%s: %v", subjectID, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to generate link")
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// handleAuthStart checks the token and redirects into the external provider
// flow with the token as the state parameter.
func (h *Handler) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		writeText(w, http.StatusBadRequest, "Missing token.")
		return
	}

	redirectURL, err := h.verifier.BeginAuth(r.Context(), tokenID)
	if err != nil {
		writeText(w, http.StatusForbidden, rejectionMessage(err))
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// handleAuthCallback redeems the provider code, then drives complete-auth.
// The response is always a human-readable success or rejection message.
func (h *Handler) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tokenID := query.Get("state")
	code := query.Get("code")
	if tokenID == "" || code == "" {
		writeText(w, http.StatusBadRequest, "Invalid or expired verification link.")
		return
	}

	claims, err := h.provider.ExchangeCode(r.Context(), code)
	if err != nil {
		h.log.Printf("code exchange failed: %v", err)
		writeText(w, http.StatusBadGateway, "Authentication with the identity provider failed.")
		return
	}

	res, err := h.verifier.CompleteAuth(r.Context(), tokenID, claims.Email)
	if err != nil {
		writeText(w, http.StatusForbidden, rejectionMessage(err))
		return
	}

	msg := "Verification successful! You can return to Discord."
	if len(res.Warnings) > 0 {
		msg += " Some roles could not be applied; an admin has been notified."
	}
	writeText(w, http.StatusOK, msg)
}

func (h *Handler) handleAuthFailure(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusUnauthorized, "Authentication failed. Please request a new verification link.")
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rejectionMessage maps rejection reasons to the subject-facing text.
func rejectionMessage(err error) string {
	reason, ok := verification.ReasonOf(err)
	if !ok {
		return "Verification failed. Please try again later."
	}
	switch reason {
	case verification.ReasonInvalidToken:
		return "Invalid or expired verification link."
	case verification.ReasonExpiredToken:
		return "This verification link has expired. Request a new one with !verify."
	case verification.ReasonAlreadyConsumed:
		return "This verification link was already used. Request a new one with !verify."
	case verification.ReasonDomainNotAllowed:
		return "Please sign in with your institute email address."
	case verification.ReasonMalformedIdentity:
		return "Your email address does not look like an institute account."
	default:
		return "Verification failed. Please try again later."
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, msg)
}
