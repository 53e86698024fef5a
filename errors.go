package authpeer

import "errors"

// Sentinel errors returned by Peer's outbound API and surfaced (wrapped,
// logged, never panicked on) from the dispatcher when an inbound message
// fails processing. transport.ErrStructural, transport.ErrUnknownMessageType,
// transport.ErrVersionMismatch, and certs.ErrCertificateValidation round out
// the full error-kind table; session lookups surface *session.ErrSessionMissing
// directly rather than being re-wrapped here.
var (
	// ErrNonceRejected means a required nonce failed NonceService verification
	// — it was not minted by this Peer's own wallet.
	ErrNonceRejected = errors.New("authpeer: nonce rejected")

	// ErrSignatureInvalid means a message's signature did not verify under
	// the protocolID/keyID/counterparty binding the processor computed for it.
	ErrSignatureInvalid = errors.New("authpeer: signature invalid")

	// ErrSessionIncomplete means a session was found but lacks the state
	// (authentication, matching identity key) the operation requires.
	ErrSessionIncomplete = errors.New("authpeer: session missing required state")

	// ErrTransportFailure wraps an error returned by the underlying Transport.
	ErrTransportFailure = errors.New("authpeer: transport failure")

	// ErrHandshakeTimeout is returned by InitiateHandshake when maxWaitTime
	// elapses with no initialResponse observed.
	ErrHandshakeTimeout = errors.New("authpeer: handshake timed out waiting for initialResponse")

	// ErrHandshakeFailed is reserved for a non-timer handshake abort path.
	// It is defined for completeness with the timeout/failure error pair but
	// is not returned anywhere in this version of the dispatcher.
	ErrHandshakeFailed = errors.New("authpeer: handshake failed")

	// ErrNoPeer means an outbound call was given no identityKey and no prior
	// interaction exists to default to.
	ErrNoPeer = errors.New("authpeer: no identity key given and no prior peer to default to")
)
