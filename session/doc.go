// Package session implements the SessionManager: the owning store of
// PeerSession values plus auxiliary indices by local session nonce, peer
// nonce, and peer identity key.
package session
