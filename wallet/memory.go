package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// nonceMACSize is the length, in bytes, of the keyed MAC appended to every
// nonce minted by MemoryWallet. It is short because the nonce only needs to
// resist forgery by parties who don't hold the wallet's key, not to carry
// entropy of its own — the random prefix already does that.
const nonceMACSize = 16

// nonceRandomSize is the number of random bytes a minted nonce carries
// before the MAC.
const nonceRandomSize = 32

// MemoryWallet is a reference Wallet backed by an in-process Ed25519 key
// pair. It binds nonces to its identity with a blake2b keyed MAC rather than
// any persistent store, so two MemoryWallet instances never share nonce
// state — which is the point: only the wallet that minted a nonce can verify
// it.
//
// MemoryWallet is safe for concurrent use.
type MemoryWallet struct {
	mu         sync.Mutex
	public     ed25519.PublicKey
	private    ed25519.PrivateKey
	publicHex  string
	nonceMACKey []byte
	logger     *logrus.Entry
}

// NewMemoryWallet generates a fresh Ed25519 identity key pair and returns a
// Wallet for it.
func NewMemoryWallet() (*MemoryWallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key pair: %w", err)
	}
	return newMemoryWallet(pub, priv), nil
}

// MustNewMemoryWallet is NewMemoryWallet, panicking on error. Intended for
// tests and examples where key generation failure is not a case worth
// plumbing through.
func MustNewMemoryWallet() *MemoryWallet {
	w, err := NewMemoryWallet()
	if err != nil {
		panic(err)
	}
	return w
}

func newMemoryWallet(pub ed25519.PublicKey, priv ed25519.PrivateKey) *MemoryWallet {
	macKey := make([]byte, 32)
	copy(macKey, priv.Seed())
	return &MemoryWallet{
		public:      pub,
		private:     priv,
		publicHex:   hex.EncodeToString(pub),
		nonceMACKey: macKey,
		logger:      logrus.WithField("component", "wallet"),
	}
}

// GetPublicKey implements Wallet.
func (w *MemoryWallet) GetPublicKey(ctx context.Context) (string, error) {
	return w.publicHex, nil
}

// signingDigest binds the protocolID/keyID/counterparty context into the
// bytes actually fed to Ed25519, so a signature produced under one binding
// never verifies under another even if the raw data matches.
func signingDigest(data []byte, protocolID ProtocolID, keyID, counterparty string) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key, and we pass none.
		panic(fmt.Sprintf("wallet: blake2b.New256: %v", err))
	}
	fmt.Fprintf(h, "%d|%s|%s|%s|", protocolID.SecurityLevel, protocolID.Protocol, keyID, counterparty)
	h.Write(data)
	return h.Sum(nil)
}

// CreateSignature implements Wallet.
func (w *MemoryWallet) CreateSignature(ctx context.Context, data []byte, protocolID ProtocolID, keyID string, counterparty string) ([]byte, error) {
	digest := signingDigest(data, protocolID, keyID, counterparty)
	w.mu.Lock()
	sig := ed25519.Sign(w.private, digest)
	w.mu.Unlock()
	w.logger.WithFields(logrus.Fields{
		"keyID":        keyID,
		"counterparty": counterparty,
	}).Debug("created signature")
	return sig, nil
}

// VerifySignature implements Wallet.
func (w *MemoryWallet) VerifySignature(ctx context.Context, data, signature []byte, protocolID ProtocolID, keyID string, counterparty string) (bool, error) {
	counterpartyKey, err := hex.DecodeString(counterparty)
	if err != nil {
		return false, fmt.Errorf("wallet: decode counterparty key: %w", err)
	}
	if len(counterpartyKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("wallet: counterparty key has wrong size %d", len(counterpartyKey))
	}
	digest := signingDigest(data, protocolID, keyID, counterparty)
	valid := ed25519.Verify(ed25519.PublicKey(counterpartyKey), digest, signature)
	w.logger.WithFields(logrus.Fields{
		"keyID":        keyID,
		"counterparty": counterparty,
		"valid":        valid,
	}).Debug("verified signature")
	return valid, nil
}

// CreateNonce implements Wallet. The nonce is a base64 encoding of
// nonceRandomSize random bytes followed by a blake2b-keyed MAC of those
// bytes, so VerifyNonce can recompute and compare the MAC without any
// stored state.
func (w *MemoryWallet) CreateNonce(ctx context.Context) (string, error) {
	random := make([]byte, nonceRandomSize)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("wallet: read random nonce bytes: %w", err)
	}
	mac, err := w.macOver(random)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(random, mac...)), nil
}

// VerifyNonce implements Wallet.
func (w *MemoryWallet) VerifyNonce(ctx context.Context, nonce string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return false, nil //nolint:nilerr // malformed nonce is "not ours", not an error
	}
	if len(raw) != nonceRandomSize+nonceMACSize {
		return false, nil
	}
	random, gotMAC := raw[:nonceRandomSize], raw[nonceRandomSize:]
	wantMAC, err := w.macOver(random)
	if err != nil {
		return false, err
	}
	return hmacEqual(gotMAC, wantMAC), nil
}

func (w *MemoryWallet) macOver(random []byte) ([]byte, error) {
	h, err := blake2b.New(nonceMACSize, w.nonceMACKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: blake2b.New: %w", err)
	}
	h.Write(random)
	return h.Sum(nil), nil
}

// hmacEqual is a constant-time byte comparison, named for its purpose
// rather than its implementation since it isn't actually HMAC here.
func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// ErrUnknownPublicKey is returned by PublicKeyFromHex when the hex string is
// not a valid Ed25519 public key encoding.
var ErrUnknownPublicKey = errors.New("wallet: invalid public key encoding")

// PublicKeyFromHex validates that s decodes to an Ed25519-sized public key,
// returning ErrUnknownPublicKey otherwise. Used by callers that accept an
// identityKey from the wire and want to fail fast before handing it to a
// Wallet.
func PublicKeyFromHex(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return ErrUnknownPublicKey
	}
	return nil
}
