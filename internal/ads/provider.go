package ads

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/google"
)

// Provider hands out Clients. Requests carrying a user's Google token get a
// client authorized as that user; all others share a client built from the
// server's own credentials.
type Provider struct {
	credentialsPath string
	opts            Options

	mu      sync.Mutex
	creds   *Credentials
	shared  *Client
	baseCtx context.Context
}

// NewProvider returns a Provider that loads credentials from path on first use.
func NewProvider(ctx context.Context, credentialsPath string, opts Options) *Provider {
	return &Provider{
		credentialsPath: credentialsPath,
		opts:            opts,
		baseCtx:         context.WithoutCancel(ctx),
	}
}

// Client returns the client for the caller in ctx.
func (p *Provider) Client(ctx context.Context) (*Client, error) {
	if tok, ok := google.TokenFromContext(ctx); ok {
		return p.userClient(ctx, tok)
	}
	return p.Shared(ctx)
}

// Shared returns the client built from the server's own credentials. A
// failed build is retried on the next call.
func (p *Provider) Shared(ctx context.Context) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shared != nil {
		return p.shared, nil
	}

	creds, err := p.loadLocked()
	if err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	p.creds = &creds

	ts, err := p.tokenSource(creds)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(ctx, creds.DeveloperToken, ts, p.options(creds))
	if err != nil {
		return nil, err
	}
	p.shared = c
	return c, nil
}

func (p *Provider) userClient(ctx context.Context, tok *oauth2.Token) (*Client, error) {
	p.mu.Lock()
	creds, err := p.loadLocked()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, creds.DeveloperToken, oauth2.StaticTokenSource(tok), p.options(creds))
}

// loadLocked returns the cached credentials once a set has validated and
// rereads the file and environment until then.
func (p *Provider) loadLocked() (Credentials, error) {
	if p.creds != nil {
		return *p.creds, nil
	}
	return LoadCredentials(p.credentialsPath)
}

func (p *Provider) tokenSource(creds Credentials) (oauth2.TokenSource, error) {
	if p.opts.TokenSource != nil {
		return p.opts.TokenSource, nil
	}
	if creds.JSONKeyFilePath != "" {
		ts, err := google.ServiceAccountTokenSource(p.baseCtx, creds.JSONKeyFilePath, creds.ImpersonatedEmail)
		if err != nil {
			return nil, fmt.Errorf("service account: %w", err)
		}
		return ts, nil
	}
	return google.RefreshTokenSource(p.baseCtx, creds.ClientID, creds.ClientSecret, creds.RefreshToken), nil
}

// options resolves the login customer id; the configured value wins over
// the credentials file.
func (p *Provider) options(creds Credentials) Options {
	opts := p.opts
	if opts.LoginCustomerID == "" {
		opts.LoginCustomerID = creds.LoginCustomerID
	}
	if id, err := NormalizeCustomerID(opts.LoginCustomerID); err == nil {
		opts.LoginCustomerID = id
	} else {
		opts.LoginCustomerID = ""
	}
	return opts
}
