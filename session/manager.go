package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager is the SessionManager: one owning store of
// PeerSession values, indexed by Handle, plus three auxiliary indices from
// {sessionNonce, peerNonce, peerIdentityKey} to a Handle. It is safe for
// concurrent use.
type Manager struct {
	mu sync.RWMutex

	byHandle          map[Handle]PeerSession
	bySessionNonce    map[string]Handle
	byPeerNonce       map[string]Handle
	byPeerIdentityKey map[string]Handle

	logger *logrus.Entry
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		byHandle:          make(map[Handle]PeerSession),
		bySessionNonce:    make(map[string]Handle),
		byPeerNonce:       make(map[string]Handle),
		byPeerIdentityKey: make(map[string]Handle),
		logger:            logrus.WithField("component", "session.Manager"),
	}
}

// AddSession inserts s, indexed by its SessionNonce (required to be
// non-empty) and by PeerIdentityKey/PeerNonce when present, and returns the
// Handle future lookups/updates/removals use.
func (m *Manager) AddSession(s PeerSession) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Handle(uuid.New())
	m.byHandle[h] = s
	m.reindexLocked(h, s)

	m.logger.WithFields(logrus.Fields{
		"handle":          h,
		"isAuthenticated": s.IsAuthenticated,
	}).Debug("session added")
	return h
}

// reindexLocked must be called with mu held. It (re)points every non-empty
// index field of s at h, overwriting whatever handle previously owned that
// key — the guarantee that a peerIdentityKey lookup returns the most
// recently authenticated session for that peer falls directly out of
// "last write wins" here.
func (m *Manager) reindexLocked(h Handle, s PeerSession) {
	if s.SessionNonce != "" {
		m.bySessionNonce[s.SessionNonce] = h
	}
	if s.PeerNonce != "" {
		m.byPeerNonce[s.PeerNonce] = h
	}
	if s.PeerIdentityKey != "" {
		m.byPeerIdentityKey[s.PeerIdentityKey] = h
	}
}

// GetSession looks up a session by one of the three indices.
func (m *Manager) GetSession(lookup Lookup, key string) (PeerSession, Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.lookupLocked(lookup, key)
	if !ok {
		return PeerSession{}, Handle{}, false
	}
	s, ok := m.byHandle[h]
	return s, h, ok
}

func (m *Manager) lookupLocked(lookup Lookup, key string) (Handle, bool) {
	switch lookup {
	case BySessionNonce:
		h, ok := m.bySessionNonce[key]
		return h, ok
	case ByPeerNonce:
		h, ok := m.byPeerNonce[key]
		return h, ok
	case ByPeerIdentityKey:
		h, ok := m.byPeerIdentityKey[key]
		return h, ok
	default:
		return Handle{}, false
	}
}

// GetByHandle looks up a session directly by its Handle.
func (m *Manager) GetByHandle(h Handle) (PeerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byHandle[h]
	return s, ok
}

// GetAuthenticatedByIdentity returns the most recent authenticated session
// for identityKey, if one exists. An unauthenticated (e.g. still-Pending)
// session indexed under the same identity key does not satisfy this call.
func (m *Manager) GetAuthenticatedByIdentity(identityKey string) (PeerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byPeerIdentityKey[identityKey]
	if !ok {
		return PeerSession{}, false
	}
	s, ok := m.byHandle[h]
	if !ok || !s.IsAuthenticated {
		return PeerSession{}, false
	}
	return s, true
}

// UpdateSession replaces the session at h with updated and reindexes any
// changed keys. It is the only way a session's nonces/identity key/
// authentication flag are mutated after AddSession — a session is mutated
// only by its owning Peer, on receipt of a valid initialResponse.
func (m *Manager) UpdateSession(h Handle, updated PeerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHandle[h]; !ok {
		return &ErrSessionMissing{Lookup: -1, Key: h.String()}
	}
	m.byHandle[h] = updated
	m.reindexLocked(h, updated)

	m.logger.WithFields(logrus.Fields{
		"handle":          h,
		"isAuthenticated": updated.IsAuthenticated,
	}).Debug("session updated")
	return nil
}

// RemoveSession deletes the session at h along with every index entry that
// points at it. It tolerates h not existing.
func (m *Manager) RemoveSession(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byHandle[h]
	if !ok {
		return
	}
	delete(m.byHandle, h)
	if s.SessionNonce != "" && m.bySessionNonce[s.SessionNonce] == h {
		delete(m.bySessionNonce, s.SessionNonce)
	}
	if s.PeerNonce != "" && m.byPeerNonce[s.PeerNonce] == h {
		delete(m.byPeerNonce, s.PeerNonce)
	}
	if s.PeerIdentityKey != "" && m.byPeerIdentityKey[s.PeerIdentityKey] == h {
		delete(m.byPeerIdentityKey, s.PeerIdentityKey)
	}
	m.logger.WithField("handle", h).Debug("session removed")
}
