package session

import (
	"fmt"

	"github.com/google/uuid"
)

// Handle is a stable, opaque reference to a PeerSession inside a Manager.
// It exists so the owning store can be a single map keyed by something that
// never changes as a session's nonces and identity key get learned, with
// the nonce/identity-key indices pointing at a Handle rather than owning a
// copy of the session.
type Handle uuid.UUID

// String implements fmt.Stringer.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// PeerSession is the local party's view of one handshake/session.
type PeerSession struct {
	// IsAuthenticated is true once both SessionNonce and PeerNonce are
	// present and the initial-response signature has been verified — with
	// one deliberate asymmetry: the
	// responder sets this true immediately on accepting a valid
	// initialRequest, before the initiator has proven anything, because the
	// responder's own authentication is only at risk once it sends a signed
	// initialResponse. Treat IsAuthenticated on a responder-created session
	// as "this side is committed", not "mutual auth is proven" — mutual
	// auth is only proven on the initiator's side of that pairing, once it
	// has verified the initialResponse's signature.
	IsAuthenticated bool

	// SessionNonce is the nonce this local party minted for the session.
	SessionNonce string

	// PeerNonce is the counterparty's contributed nonce, once learned.
	PeerNonce string

	// PeerIdentityKey is the counterparty's identity key, once learned.
	PeerIdentityKey string
}

// Lookup selects which index GetSession consults.
type Lookup int

const (
	// BySessionNonce looks up by the local nonce contributed to the session.
	BySessionNonce Lookup = iota
	// ByPeerNonce looks up by the counterparty's contributed nonce.
	ByPeerNonce
	// ByPeerIdentityKey looks up the session most recently indexed under a
	// given counterparty identity key, whether or not it is authenticated
	// (Manager.GetAuthenticatedByIdentity filters out unauthenticated ones).
	ByPeerIdentityKey
)

// ErrSessionMissing is returned by UpdateSession for a Handle the Manager
// does not hold, and by the Peer's processors when a nonce lookup finds no
// session. RemoveSession tolerates a missing Handle and returns nothing.
type ErrSessionMissing struct {
	Lookup Lookup
	Key    string
}

func (e *ErrSessionMissing) Error() string {
	return fmt.Sprintf("session: no session for %s %q", e.Lookup, e.Key)
}

// String implements fmt.Stringer for Lookup, for error messages and logging.
func (l Lookup) String() string {
	switch l {
	case BySessionNonce:
		return "sessionNonce"
	case ByPeerNonce:
		return "peerNonce"
	case ByPeerIdentityKey:
		return "peerIdentityKey"
	default:
		return "unknown"
	}
}
