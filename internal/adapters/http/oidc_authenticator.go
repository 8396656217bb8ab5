package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator verifies ID tokens against an OIDC issuer. It is used
// instead of JWTMiddleware when an issuer URL is configured.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger
}

// NewOIDCAuthenticator discovers the provider and creates an authenticator.
func NewOIDCAuthenticator(ctx context.Context, providerURL, clientID string, logger *slog.Logger) (*OIDCAuthenticator, error) {
	if providerURL == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC URL and ClientID cannot be empty")
	}

	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return NewOIDCAuthenticatorWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), logger), nil
}

func NewOIDCAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier, logger *slog.Logger) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier, logger: logger}
}

// Middleware is an HTTP middleware for token verification.
func (a *OIDCAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, "Authorization header required", http.StatusUnauthorized, a.logger)
			return
		}

		idToken, err := a.verifier.Verify(r.Context(), rawToken)
		if err != nil {
			a.logger.Warn("OIDC token verification failed", "error", err)
			writeJSONError(w, "Invalid token", http.StatusUnauthorized, a.logger)
			return
		}
		if idToken.Subject == "" {
			writeJSONError(w, "Invalid token claims", http.StatusUnauthorized, a.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), idToken.Subject)))
	})
}
