package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetBySessionNonce(t *testing.T) {
	m := NewManager()
	h := m.AddSession(PeerSession{SessionNonce: "local-nonce"})

	got, gotHandle, ok := m.GetSession(BySessionNonce, "local-nonce")
	require.True(t, ok)
	assert.Equal(t, h, gotHandle)
	assert.Equal(t, "local-nonce", got.SessionNonce)
}

func TestUpdateReindexesPeerNonceAndIdentity(t *testing.T) {
	m := NewManager()
	h := m.AddSession(PeerSession{SessionNonce: "local-nonce"})

	err := m.UpdateSession(h, PeerSession{
		SessionNonce:    "local-nonce",
		PeerNonce:       "peer-nonce",
		PeerIdentityKey: "peer-key",
		IsAuthenticated: true,
	})
	require.NoError(t, err)

	byPeerNonce, _, ok := m.GetSession(ByPeerNonce, "peer-nonce")
	require.True(t, ok)
	assert.True(t, byPeerNonce.IsAuthenticated)

	byIdentity, _, ok := m.GetSession(ByPeerIdentityKey, "peer-key")
	require.True(t, ok)
	assert.Equal(t, "peer-nonce", byIdentity.PeerNonce)
}

func TestGetAuthenticatedByIdentityReturnsLatest(t *testing.T) {
	m := NewManager()

	h1 := m.AddSession(PeerSession{SessionNonce: "n1", PeerIdentityKey: "peer-key", IsAuthenticated: true})
	_, ok := m.GetAuthenticatedByIdentity("peer-key")
	require.True(t, ok)

	h2 := m.AddSession(PeerSession{SessionNonce: "n2", PeerIdentityKey: "peer-key", IsAuthenticated: true})
	latest, ok := m.GetAuthenticatedByIdentity("peer-key")
	require.True(t, ok)
	assert.Equal(t, "n2", latest.SessionNonce)

	assert.NotEqual(t, h1, h2)
}

func TestGetAuthenticatedByIdentityIgnoresUnauthenticated(t *testing.T) {
	m := NewManager()
	m.AddSession(PeerSession{SessionNonce: "n1", PeerIdentityKey: "peer-key", IsAuthenticated: false})

	_, ok := m.GetAuthenticatedByIdentity("peer-key")
	assert.False(t, ok)
}

func TestRemoveSessionClearsAllIndices(t *testing.T) {
	m := NewManager()
	h := m.AddSession(PeerSession{
		SessionNonce:    "local-nonce",
		PeerNonce:       "peer-nonce",
		PeerIdentityKey: "peer-key",
	})

	m.RemoveSession(h)

	_, _, ok := m.GetSession(BySessionNonce, "local-nonce")
	assert.False(t, ok)
	_, _, ok = m.GetSession(ByPeerNonce, "peer-nonce")
	assert.False(t, ok)
	_, _, ok = m.GetSession(ByPeerIdentityKey, "peer-key")
	assert.False(t, ok)
}

func TestRemoveSessionToleratesMissingHandle(t *testing.T) {
	m := NewManager()
	assert.NotPanics(t, func() {
		m.RemoveSession(Handle{})
	})
}

func TestUpdateSessionMissingHandleErrors(t *testing.T) {
	m := NewManager()
	err := m.UpdateSession(Handle{}, PeerSession{})
	assert.Error(t, err)
}
