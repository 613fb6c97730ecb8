package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowStore_CodeIsSingleUse(t *testing.T) {
	store := NewFlowStore(nil)
	store.SaveAuthorizationCode(&AuthorizationCode{
		Code:      "code-1",
		ClientID:  "client",
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	})

	code, err := store.ConsumeAuthorizationCode("code-1")
	require.NoError(t, err)
	assert.Equal(t, "client", code.ClientID)

	_, err = store.ConsumeAuthorizationCode("code-1")
	assert.ErrorIs(t, err, errCodeNotFound)
}

func TestFlowStore_Expiry(t *testing.T) {
	store := NewFlowStore(nil)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.SaveAuthorizationState(&AuthorizationState{GoogleState: "s", ExpiresAt: now.Add(-time.Second).Unix()})
	store.SaveAuthorizationCode(&AuthorizationCode{Code: "c", ExpiresAt: now.Add(-time.Second).Unix()})

	_, err := store.ConsumeAuthorizationState("s")
	assert.ErrorIs(t, err, errStateExpired)
	_, err = store.ConsumeAuthorizationCode("c")
	assert.ErrorIs(t, err, errCodeExpired)
}

func TestFlowStore_CleanupExpired(t *testing.T) {
	store := NewFlowStore(nil)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.SaveAuthorizationState(&AuthorizationState{GoogleState: "old", ExpiresAt: now.Add(-time.Minute).Unix()})
	store.SaveAuthorizationState(&AuthorizationState{GoogleState: "new", ExpiresAt: now.Add(time.Minute).Unix()})
	store.SaveAuthorizationCode(&AuthorizationCode{Code: "old", ExpiresAt: now.Add(-time.Minute).Unix()})

	store.cleanupExpired()

	assert.Len(t, store.states, 1)
	assert.Empty(t, store.codes)

	state, err := store.ConsumeAuthorizationState("new")
	require.NoError(t, err)
	assert.Equal(t, "new", state.GoogleState)
}
