package wallet

import "context"

// ProtocolID identifies the signing domain for a signature, mirroring the
// (securityLevel, protocol string) pair every AuthMessage signature is
// bound to.
type ProtocolID struct {
	SecurityLevel int
	Protocol      string
}

// AuthMessageSignatureProtocol is the fixed protocolID used for every
// authentication message signature in this protocol version.
var AuthMessageSignatureProtocol = ProtocolID{SecurityLevel: 2, Protocol: "auth message signature"}

// Wallet is the external collaborator that holds identity key material and
// performs every cryptographic operation the Peer needs. It is intentionally
// narrow: the core never sees a private key, only signatures, a public key
// string, and opaque nonce strings it can hand back for verification.
type Wallet interface {
	// CreateSignature signs data under the given protocolID/keyID/counterparty
	// binding and returns the raw signature bytes.
	CreateSignature(ctx context.Context, data []byte, protocolID ProtocolID, keyID string, counterparty string) ([]byte, error)

	// VerifySignature checks a signature produced by CreateSignature with the
	// same protocolID/keyID/counterparty binding.
	VerifySignature(ctx context.Context, data, signature []byte, protocolID ProtocolID, keyID string, counterparty string) (bool, error)

	// GetPublicKey returns this wallet's long-lived identity public key,
	// hex-encoded.
	GetPublicKey(ctx context.Context) (string, error)

	// CreateNonce produces a fresh nonce cryptographically bound to this
	// wallet's identity.
	CreateNonce(ctx context.Context) (string, error)

	// VerifyNonce reports whether nonce was produced by this wallet's own
	// CreateNonce.
	VerifyNonce(ctx context.Context, nonce string) (bool, error)
}

// CreateNonce is the NonceService entry point: it mints a nonce bound to w's
// identity. It exists as a free function, rather than being called directly
// on the Wallet everywhere, so callers that only need nonce semantics don't
// need to know the rest of the Wallet contract.
func CreateNonce(ctx context.Context, w Wallet) (string, error) {
	return w.CreateNonce(ctx)
}

// VerifyNonce is the NonceService entry point: it reports whether nonce was
// minted by w.
func VerifyNonce(ctx context.Context, w Wallet, nonce string) (bool, error) {
	return w.VerifyNonce(ctx, nonce)
}
