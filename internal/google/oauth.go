package google

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewOAuthConfig returns the web-flow configuration for a Google OAuth client.
func NewOAuthConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}

// RefreshTokenSource returns a token source that mints Ads API access
// tokens from a long-lived refresh token.
func RefreshTokenSource(ctx context.Context, clientID, clientSecret, refreshToken string) oauth2.TokenSource {
	conf := NewOAuthConfig(clientID, clientSecret, "", []string{ScopeAdwords})
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// ServiceAccountTokenSource reads a service account key file. When subject
// is set the account impersonates that user through domain-wide delegation.
func ServiceAccountTokenSource(ctx context.Context, keyFile, subject string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, ScopeAdwords)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	conf.Subject = subject
	return conf.TokenSource(ctx), nil
}

// HTTP1Client returns a client that never negotiates HTTP/2. Google's
// OAuth endpoints occasionally reset HTTP/2 streams on long-lived
// connections.
func HTTP1Client() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = false
	transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return &http.Client{Transport: transport}
}
