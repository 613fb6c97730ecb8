package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/google"
)

func TestVerifier_Verify(t *testing.T) {
	fake := &fakeGoogle{tokens: map[string]*TokenInfo{
		"good":    validTokenInfo("user@example.com"),
		"expired": {Email: "user@example.com", Scopes: []string{config.AdwordsScope}},
		"noscope": {Email: "user@example.com", Scopes: []string{google.ScopeUserInfoEmail}, ExpiresIn: time.Hour},
		"noemail": {Scopes: []string{config.AdwordsScope}, ExpiresIn: time.Hour},
	}}
	v := NewVerifier(fake, []string{config.AdwordsScope}, 0)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid", token: "good"},
		{name: "unknown", token: "bogus", wantErr: ErrTokenRejected},
		{name: "expired", token: "expired", wantErr: ErrTokenExpired},
		{name: "missing adwords scope", token: "noscope", wantErr: ErrMissingScope},
		{name: "missing email", token: "noemail", wantErr: ErrTokenRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user@example.com", id.Email)
		})
	}
}

func TestVerifier_CachesUntilTTL(t *testing.T) {
	fake := &fakeGoogle{tokens: map[string]*TokenInfo{"good": validTokenInfo("user@example.com")}}
	v := NewVerifier(fake, []string{config.AdwordsScope}, 5*time.Minute)
	now := time.Now()
	v.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), "good")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.callCount())

	now = now.Add(5*time.Minute + time.Second)
	_, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.callCount())
}

func TestVerifier_CacheBoundedByTokenLifetime(t *testing.T) {
	info := validTokenInfo("user@example.com")
	info.ExpiresIn = 30 * time.Second
	fake := &fakeGoogle{tokens: map[string]*TokenInfo{"short": info}}
	v := NewVerifier(fake, nil, 5*time.Minute)
	now := time.Now()
	v.now = func() time.Time { return now }

	_, err := v.Verify(context.Background(), "short")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, _ = v.Verify(context.Background(), "short")
	assert.Equal(t, 2, fake.callCount())
}

func TestVerifier_Forget(t *testing.T) {
	fake := &fakeGoogle{tokens: map[string]*TokenInfo{"good": validTokenInfo("user@example.com")}}
	v := NewVerifier(fake, nil, time.Minute)

	_, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	v.Forget("good")
	_, err = v.Verify(context.Background(), "good")
	require.NoError(t, err)

	assert.Equal(t, 2, fake.callCount())
}
