package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_AccessToken(t *testing.T) {
	s := NewSessionStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.SaveAccessToken("live", &Session{Email: "a@example.com", ExpiresAt: now.Add(time.Hour)})
	s.SaveAccessToken("dead", &Session{Email: "b@example.com", ExpiresAt: now.Add(-time.Second)})

	sess, err := s.AccessToken("live")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sess.Email)

	_, err = s.AccessToken("dead")
	assert.ErrorIs(t, err, errTokenNotFound)
	_, err = s.AccessToken("unknown")
	assert.ErrorIs(t, err, errTokenNotFound)
}

func TestSessionStore_RefreshRotation(t *testing.T) {
	s := NewSessionStore()
	s.SaveRefreshToken("r1", &Session{Email: "a@example.com", ExpiresAt: time.Now().Add(time.Hour)})

	sess, err := s.ConsumeRefreshToken("r1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sess.Email)

	_, err = s.ConsumeRefreshToken("r1")
	assert.ErrorIs(t, err, errTokenNotFound, "refresh tokens are single use")
}

func TestSessionStore_Revoke(t *testing.T) {
	s := NewSessionStore()
	s.SaveAccessToken("a", &Session{Email: "a@example.com"})
	s.SaveRefreshToken("r", &Session{Email: "a@example.com"})

	_, ok := s.Revoke("a")
	assert.True(t, ok)
	_, ok = s.Revoke("r")
	assert.True(t, ok)
	_, ok = s.Revoke("a")
	assert.False(t, ok)

	_, err := s.AccessToken("a")
	assert.Error(t, err)
}
