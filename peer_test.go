package authpeer_test

import (
	"context"
	"testing"
	"time"

	"github.com/authpeer/authpeer"
	"github.com/authpeer/authpeer/certs"
	"github.com/authpeer/authpeer/transport"
	"github.com/authpeer/authpeer/wallet"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectedPair(t *testing.T, optsA, optsB []authpeer.Option) (*authpeer.Peer, *authpeer.Peer, *wallet.MemoryWallet, *wallet.MemoryWallet) {
	t.Helper()
	walletA := wallet.MustNewMemoryWallet()
	walletB := wallet.MustNewMemoryWallet()
	pipeA, pipeB := transport.NewPipe()

	peerA := authpeer.NewPeer(walletA, pipeA, optsA...)
	peerB := authpeer.NewPeer(walletB, pipeB, optsB...)
	return peerA, peerB, walletA, walletB
}

func TestHandshakeAndGeneralMessage(t *testing.T) {
	peerA, peerB, _, walletB := newConnectedPair(t, nil, nil)

	received := make(chan []byte, 1)
	peerB.ListenForGeneralMessages(func(sender string, payload []byte) {
		received <- payload
	})

	bKey, err := walletB.GetPublicKey(context.Background())
	require.NoError(t, err)

	err = peerA.ToPeer(context.Background(), []byte("hello"), bKey)
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("general message not delivered")
	}
}

func TestHandshakeTimeout(t *testing.T) {
	walletA := wallet.MustNewMemoryWallet()
	pipeA, _ := transport.NewPipe() // peer side deliberately never registers OnData

	peerA := authpeer.NewPeer(walletA, pipeA, authpeer.WithMaxWaitTime(20*time.Millisecond))

	_, err := peerA.InitiateHandshake(context.Background(), "0000")
	assert.ErrorIs(t, err, authpeer.ErrHandshakeTimeout)
}

// tamperingTransport flips every bit of the first byte of each non-empty
// outbound payload before handing
// the message to the underlying Pipe, simulating an on-the-wire modification
// a transport (explicitly out of scope for integrity here) might let through.
type tamperingTransport struct {
	inner *transport.Pipe
}

func (t *tamperingTransport) Send(ctx context.Context, msg *transport.AuthMessage) error {
	if len(msg.Payload) == 0 {
		return t.inner.Send(ctx, msg)
	}
	clone := *msg
	clone.Payload = append([]byte(nil), msg.Payload...)
	clone.Payload[0] ^= 0xFF
	return t.inner.Send(ctx, &clone)
}

func (t *tamperingTransport) OnData(handler func(*transport.AuthMessage)) {
	t.inner.OnData(handler)
}

func TestTamperedPayloadRejected(t *testing.T) {
	walletA := wallet.MustNewMemoryWallet()
	walletB := wallet.MustNewMemoryWallet()
	pipeA, pipeB := transport.NewPipe()

	peerA := authpeer.NewPeer(walletA, &tamperingTransport{inner: pipeA})
	peerB := authpeer.NewPeer(walletB, pipeB)

	var deliveries int
	peerB.ListenForGeneralMessages(func(string, []byte) { deliveries++ })

	bKey, err := walletB.GetPublicKey(context.Background())
	require.NoError(t, err)

	// ToPeer signs the untampered payload; the tamperingTransport then
	// mutates it in flight, so processGeneralMessage's signature check must
	// reject it and never reach the listener.
	err = peerA.ToPeer(context.Background(), []byte("hello"), bKey)
	require.NoError(t, err, "Send itself succeeds; the corruption happens after signing")

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, deliveries)
}

// forgingTransport corrupts the signature of every outbound initialResponse,
// while leaving the nonces (which route the message to the right waiting
// InitiateHandshake call) untouched — the routing match on yourNonce alone
// is not enough for the initiator to accept the handshake.
type forgingTransport struct {
	inner *transport.Pipe
}

func (f *forgingTransport) Send(ctx context.Context, msg *transport.AuthMessage) error {
	if msg.MessageType != string(transport.KindInitialResponse) {
		return f.inner.Send(ctx, msg)
	}
	clone := *msg
	clone.Signature = append([]byte(nil), msg.Signature...)
	clone.Signature[0] ^= 0xFF
	return f.inner.Send(ctx, &clone)
}

func (f *forgingTransport) OnData(handler func(*transport.AuthMessage)) {
	f.inner.OnData(handler)
}

func TestForgedInitialResponseSignatureRejected(t *testing.T) {
	walletA := wallet.MustNewMemoryWallet()
	walletB := wallet.MustNewMemoryWallet()
	pipeA, pipeB := transport.NewPipe()

	peerA := authpeer.NewPeer(walletA, pipeA)
	_ = authpeer.NewPeer(walletB, &forgingTransport{inner: pipeB})

	bKey, err := walletB.GetPublicKey(context.Background())
	require.NoError(t, err)

	// yourNonce correctly routes the corrupted response back to this
	// handshake; the signature check must still catch the forgery.
	_, err = peerA.InitiateHandshake(context.Background(), bKey)
	assert.ErrorIs(t, err, authpeer.ErrSignatureInvalid)
}

// TestReplayedYourNonceRejected sends B a general message carrying a
// yourNonce that B's wallet never minted — an adversary guessing or
// replaying a stale nonce rather than echoing one B actually issued.
// lookupAuthenticatedSession must reject it via wallet.VerifyNonce before
// ever consulting the session table, and no listener may fire.
func TestReplayedYourNonceRejected(t *testing.T) {
	walletA := wallet.MustNewMemoryWallet()
	walletB := wallet.MustNewMemoryWallet()
	pipeA, pipeB := transport.NewPipe()

	testLogger, hook := logrustest.NewNullLogger()
	peerB := authpeer.NewPeer(walletB, pipeB, authpeer.WithLogger(logrus.NewEntry(testLogger)))

	var deliveries int
	peerB.ListenForGeneralMessages(func(string, []byte) { deliveries++ })

	aKey, err := walletA.GetPublicKey(context.Background())
	require.NoError(t, err)

	forged := &transport.AuthMessage{
		Version:     transport.Version,
		MessageType: string(transport.KindGeneral),
		IdentityKey: aKey,
		Nonce:       "does-not-matter",
		YourNonce:   "a-nonce-b-never-minted",
		Payload:     []byte("hello"),
		Signature:   []byte("not-a-real-signature"),
	}
	require.NoError(t, pipeA.Send(context.Background(), forged))

	assert.Equal(t, 0, deliveries)

	entry := hook.LastEntry()
	require.NotNil(t, entry, "dispatch should have logged the rejection")
	loggedErr, ok := entry.Data["error"].(error)
	require.True(t, ok, "logged entry should carry the processing error")
	assert.ErrorIs(t, loggedErr, authpeer.ErrNonceRejected)
}

// TestCertificateRequestResponseRoundTrip exercises an explicit
// certificateRequest/certificateResponse exchange after the handshake has
// already completed, distinct from certificates disclosed inline during the
// handshake itself (see TestCertificateDisclosedDuringHandshake).
func TestCertificateRequestResponseRoundTrip(t *testing.T) {
	storeB := certs.NewMemoryStore()
	storeB.Add(certs.VerifiableCertificate{
		Type:      "over18",
		Certifier: "certifier-1",
		Subject:   "subject-1",
		Fields:    map[string]string{"dateOfBirth": "2000-01-01"},
	})

	peerA, peerB, _, walletB := newConnectedPair(
		t,
		nil,
		[]authpeer.Option{authpeer.WithCertificateStore(storeB)},
	)

	received := make(chan []certs.VerifiableCertificate, 1)
	peerA.ListenForCertificatesReceived(func(sender string, list []certs.VerifiableCertificate) {
		received <- list
	})

	bKey, err := walletB.GetPublicKey(context.Background())
	require.NoError(t, err)

	req := certs.RequestedCertificateSet{
		Certifiers: []string{"certifier-1"},
		Types:      map[string][]string{"over18": {"dateOfBirth"}},
	}
	require.NoError(t, peerA.RequestCertificates(context.Background(), req, bKey))

	select {
	case list := <-received:
		require.Len(t, list, 1)
		assert.Equal(t, "over18", list[0].Type)
	case <-time.After(time.Second):
		t.Fatal("certificate response not auto-delivered")
	}
	_ = peerB
}

// TestCertificateDisclosedDuringHandshake exercises certificate disclosure
// embedded directly in the initialResponse: A initiates a handshake with
// WithCertificateRequestOnHandshake set, and B — configured with a matching
// CertificateStore but no certificatesRequested listener — discloses the
// certificate inline, with no separate certificateRequest/certificateResponse
// round trip.
func TestCertificateDisclosedDuringHandshake(t *testing.T) {
	storeB := certs.NewMemoryStore()
	storeB.Add(certs.VerifiableCertificate{
		Type:      "over18",
		Certifier: "certifier-1",
		Subject:   "subject-1",
		Fields:    map[string]string{"dateOfBirth": "2000-01-01"},
	})

	req := certs.RequestedCertificateSet{
		Certifiers: []string{"certifier-1"},
		Types:      map[string][]string{"over18": {"dateOfBirth"}},
	}

	peerA, _, _, walletB := newConnectedPair(
		t,
		[]authpeer.Option{authpeer.WithCertificateRequestOnHandshake(req)},
		[]authpeer.Option{authpeer.WithCertificateStore(storeB)},
	)

	received := make(chan []certs.VerifiableCertificate, 1)
	peerA.ListenForCertificatesReceived(func(sender string, list []certs.VerifiableCertificate) {
		received <- list
	})

	bKey, err := walletB.GetPublicKey(context.Background())
	require.NoError(t, err)

	s, err := peerA.InitiateHandshake(context.Background(), bKey)
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated)

	select {
	case list := <-received:
		require.Len(t, list, 1)
		assert.Equal(t, "over18", list[0].Type)
	case <-time.After(time.Second):
		t.Fatal("certificate not disclosed inline with initialResponse")
	}
}

func TestLastPeerAffinity(t *testing.T) {
	peerA, peerB, _, walletB := newConnectedPair(t, nil, nil)

	received := make(chan []byte, 1)
	peerB.ListenForGeneralMessages(func(string, []byte) {})
	peerB.ListenForGeneralMessages(func(sender string, payload []byte) { received <- payload })

	bKey, err := walletB.GetPublicKey(context.Background())
	require.NoError(t, err)
	require.NoError(t, peerA.ToPeer(context.Background(), []byte("first"), bKey))
	<-received

	// A blank identityKey should default to the peer just interacted with.
	require.NoError(t, peerA.ToPeer(context.Background(), []byte("second"), ""))
	select {
	case payload := <-received:
		assert.Equal(t, []byte("second"), payload)
	case <-time.After(time.Second):
		t.Fatal("affinity-routed message not delivered")
	}
}
