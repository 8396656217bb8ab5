package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider fetches a fresh client-credentials token on every call.
// Tokens are never cached or logged.
type TokenProvider struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
}

// NewTokenProvider creates a provider for the OAuth endpoint under baseURL.
func NewTokenProvider(baseURL, clientID, clientSecret string, httpClient *http.Client) *TokenProvider {
	return &TokenProvider{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     strings.TrimRight(baseURL, "/") + "/v1/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
	}
}

// AccessToken implements the TokenProvider port.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", &APIError{Operation: "oauth_token", StatusCode: re.Response.StatusCode, Body: string(re.Body)}
		}
		return "", fmt.Errorf("paypal oauth token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("paypal oauth token response has no access_token")
	}
	return tok.AccessToken, nil
}
