package oauth

import "context"

// Claims are the normalized identity facts an external provider asserts.
// Providers return facts only; correlation and policy decisions happen in the
// verification service.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// Provider is the contract for the external redirect-based identity
// provider. The correlation token travels through the flow as the opaque
// state parameter.
type Provider interface {
	// AuthCodeURL returns the provider authorization URL carrying state.
	AuthCodeURL(state string) string

	// ExchangeCode redeems the authorization code and returns verified
	// claims. No tokens are retained.
	ExchangeCode(ctx context.Context, code string) (*Claims, error)
}
