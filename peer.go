package authpeer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/authpeer/authpeer/certs"
	"github.com/authpeer/authpeer/session"
	"github.com/authpeer/authpeer/transport"
	"github.com/authpeer/authpeer/wallet"
	"github.com/sirupsen/logrus"
)

// Peer is the core of the protocol: one identity, talking to any number of
// counterparties over a single Transport, with a SessionManager tracking
// per-counterparty state and a callback registry delivering post-handshake
// events to the application. Processing is single-threaded and cooperative —
// the dispatcher registered with Transport.OnData runs each inbound message
// to completion before the transport delivers the next one — so the only
// state that needs protection from outbound-API goroutines is
// lastInteractedWithPeer and the inflight handshake table.
type Peer struct {
	wallet    wallet.Wallet
	transport transport.Transport
	sessions  *session.Manager
	certStore certs.CertificateStore
	opts      options
	cb        *callbackRegistry
	logger    *logrus.Entry

	lastInteractedWithPeer atomic.Pointer[string]

	inflightMu sync.Mutex
	inflight   map[string]*pendingHandshake
}

// pendingHandshake lets a second InitiateHandshake/ToPeer call for an
// identity already being handshaken with await the first call's result
// instead of starting a redundant second handshake.
type pendingHandshake struct {
	done    chan struct{}
	session session.PeerSession
	err     error
}

// NewPeer constructs a Peer bound to w for identity/signing/nonce
// operations and t for message delivery, and registers its dispatcher with
// t.OnData.
func NewPeer(w wallet.Wallet, t transport.Transport, opts ...Option) *Peer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Peer{
		wallet:    w,
		transport: t,
		sessions:  session.NewManager(),
		certStore: o.certStore,
		opts:      o,
		cb:        newCallbackRegistry(),
		logger:    o.logger,
		inflight:  make(map[string]*pendingHandshake),
	}
	t.OnData(p.dispatch)
	return p
}

// ListenForGeneralMessages registers h to be called for every inbound
// general message, across every authenticated counterparty, returning an
// ID StopListeningForGeneralMessages accepts.
func (p *Peer) ListenForGeneralMessages(h GeneralMessageHandler) uint64 {
	return p.cb.addGeneral(h)
}

// StopListeningForGeneralMessages removes a listener registered by
// ListenForGeneralMessages.
func (p *Peer) StopListeningForGeneralMessages(id uint64) {
	p.cb.removeGeneral(id)
}

// ListenForCertificatesReceived registers h to be called whenever a
// counterparty discloses certificates, via either an initialResponse or a
// certificateResponse.
func (p *Peer) ListenForCertificatesReceived(h CertificatesReceivedHandler) uint64 {
	return p.cb.addCertsReceived(h)
}

// StopListeningForCertificatesReceived removes a listener registered by
// ListenForCertificatesReceived.
func (p *Peer) StopListeningForCertificatesReceived(id uint64) {
	p.cb.removeCertsReceived(id)
}

// ListenForCertificatesRequested registers h to be called whenever a
// counterparty asks this Peer to disclose certificates, via either a
// certificateRequest or a requestedCertificates set nested in an
// initialResponse.
func (p *Peer) ListenForCertificatesRequested(h CertificatesRequestedHandler) uint64 {
	return p.cb.addCertsRequested(h)
}

// StopListeningForCertificatesRequested removes a listener registered by
// ListenForCertificatesRequested.
func (p *Peer) StopListeningForCertificatesRequested(id uint64) {
	p.cb.removeCertsRequested(id)
}

// InitiateHandshake performs (or, for an identityKey already mid-handshake,
// joins) the four-way handshake with identityKey and returns the resulting
// authenticated session. It is safe to call concurrently for the same
// identityKey; only one initialRequest is ever sent.
func (p *Peer) InitiateHandshake(ctx context.Context, identityKey string) (session.PeerSession, error) {
	if s, ok := p.sessions.GetAuthenticatedByIdentity(identityKey); ok {
		return s, nil
	}

	p.inflightMu.Lock()
	if pending, ok := p.inflight[identityKey]; ok {
		p.inflightMu.Unlock()
		return p.awaitPending(ctx, pending)
	}
	if s, ok := p.sessions.GetAuthenticatedByIdentity(identityKey); ok {
		p.inflightMu.Unlock()
		return s, nil
	}
	pending := &pendingHandshake{done: make(chan struct{})}
	p.inflight[identityKey] = pending
	p.inflightMu.Unlock()

	return p.runHandshake(ctx, identityKey, pending)
}

func (p *Peer) awaitPending(ctx context.Context, pending *pendingHandshake) (session.PeerSession, error) {
	select {
	case <-pending.done:
		return pending.session, pending.err
	case <-ctx.Done():
		return session.PeerSession{}, ctx.Err()
	}
}

func (p *Peer) runHandshake(ctx context.Context, identityKey string, pending *pendingHandshake) (session.PeerSession, error) {
	defer func() {
		p.inflightMu.Lock()
		delete(p.inflight, identityKey)
		p.inflightMu.Unlock()
		close(pending.done)
	}()

	ownKey, err := p.wallet.GetPublicKey(ctx)
	if err != nil {
		pending.err = fmt.Errorf("authpeer: reading own public key: %w", err)
		return session.PeerSession{}, pending.err
	}
	nonce, err := wallet.CreateNonce(ctx, p.wallet)
	if err != nil {
		pending.err = fmt.Errorf("authpeer: minting session nonce: %w", err)
		return session.PeerSession{}, pending.err
	}

	h := p.sessions.AddSession(session.PeerSession{SessionNonce: nonce, PeerIdentityKey: identityKey})

	respCh := make(chan *transport.AuthMessage, 1)
	listenerID := p.cb.addInitialResponse(nonce, func(msg *transport.AuthMessage) {
		select {
		case respCh <- msg:
		default:
		}
	})
	defer p.cb.removeInitialResponse(listenerID)

	out := &transport.AuthMessage{
		Version:      transport.Version,
		MessageType:  string(transport.KindInitialRequest),
		IdentityKey:  ownKey,
		InitialNonce: nonce,
	}
	if p.opts.certRequestOnHandshake != nil {
		out.RequestedCertificates = *p.opts.certRequestOnHandshake
	}

	if err := p.transport.Send(ctx, out); err != nil {
		p.sessions.RemoveSession(h)
		pending.err = fmt.Errorf("%w: %v", ErrTransportFailure, err)
		return session.PeerSession{}, pending.err
	}

	timer := time.NewTimer(p.opts.maxWaitTime)
	defer timer.Stop()

	select {
	case msg := <-respCh:
		s, err := p.completeHandshakeAsInitiator(ctx, h, msg)
		pending.session, pending.err = s, err
		return s, err
	case <-timer.C:
		p.sessions.RemoveSession(h)
		pending.err = ErrHandshakeTimeout
		return session.PeerSession{}, ErrHandshakeTimeout
	case <-ctx.Done():
		p.sessions.RemoveSession(h)
		pending.err = ctx.Err()
		return session.PeerSession{}, ctx.Err()
	}
}

// resolveIdentityKey defaults a blank identityKey to the most recently
// interacted-with peer, when enabled.
func (p *Peer) resolveIdentityKey(identityKey string) string {
	if identityKey != "" || !p.opts.autoPersistLastSession {
		return identityKey
	}
	if last := p.lastInteractedWithPeer.Load(); last != nil {
		return *last
	}
	return identityKey
}

func (p *Peer) setLastInteractedWithPeer(identityKey string) {
	if !p.opts.autoPersistLastSession {
		return
	}
	key := identityKey
	p.lastInteractedWithPeer.Store(&key)
}

// resolveSession defaults identityKey, returns its authenticated session if
// one exists, or performs a handshake to establish one.
func (p *Peer) resolveSession(ctx context.Context, identityKey string) (session.PeerSession, string, error) {
	key := p.resolveIdentityKey(identityKey)
	if key == "" {
		return session.PeerSession{}, "", ErrNoPeer
	}
	if s, ok := p.sessions.GetAuthenticatedByIdentity(key); ok {
		return s, key, nil
	}
	s, err := p.InitiateHandshake(ctx, key)
	if err != nil {
		return session.PeerSession{}, key, err
	}
	return s, key, nil
}

// ToPeer signs and sends payload as a general message to identityKey,
// handshaking first if no authenticated session exists yet. A blank
// identityKey defaults to the most recently interacted-with peer.
func (p *Peer) ToPeer(ctx context.Context, payload []byte, identityKey string) error {
	s, key, err := p.resolveSession(ctx, identityKey)
	if err != nil {
		return err
	}
	ownKey, err := p.wallet.GetPublicKey(ctx)
	if err != nil {
		return fmt.Errorf("authpeer: reading own public key: %w", err)
	}
	nonce, err := freshNonce()
	if err != nil {
		return err
	}
	sig, err := p.wallet.CreateSignature(ctx, payload, wallet.AuthMessageSignatureProtocol, requestKeyID(nonce, s.PeerNonce), key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &transport.AuthMessage{
		Version:     transport.Version,
		MessageType: string(transport.KindGeneral),
		IdentityKey: ownKey,
		Nonce:       nonce,
		YourNonce:   s.PeerNonce,
		Payload:     payload,
		Signature:   sig,
	}
	if err := p.transport.Send(ctx, out); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	p.setLastInteractedWithPeer(key)
	return nil
}

// RequestCertificates sends a certificateRequest for req to identityKey,
// handshaking first if necessary.
func (p *Peer) RequestCertificates(ctx context.Context, req certs.RequestedCertificateSet, identityKey string) error {
	s, key, err := p.resolveSession(ctx, identityKey)
	if err != nil {
		return err
	}
	ownKey, err := p.wallet.GetPublicKey(ctx)
	if err != nil {
		return fmt.Errorf("authpeer: reading own public key: %w", err)
	}
	nonce, err := freshNonce()
	if err != nil {
		return err
	}
	data, err := marshalForSigning(req)
	if err != nil {
		return fmt.Errorf("authpeer: encoding requested certificates: %w", err)
	}
	sig, err := p.wallet.CreateSignature(ctx, data, wallet.AuthMessageSignatureProtocol, requestKeyID(nonce, s.PeerNonce), key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &transport.AuthMessage{
		Version:               transport.Version,
		MessageType:           string(transport.KindCertificateRequest),
		IdentityKey:           ownKey,
		Nonce:                 nonce,
		YourNonce:             s.PeerNonce,
		RequestedCertificates: req,
		Signature:             sig,
	}
	if err := p.transport.Send(ctx, out); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	p.setLastInteractedWithPeer(key)
	return nil
}

// SendCertificateResponse sends disclosed as a certificateResponse to
// identityKey, echoing req so the counterparty can validate disclosure
// against what it actually asked for.
func (p *Peer) SendCertificateResponse(ctx context.Context, req certs.RequestedCertificateSet, disclosed []certs.VerifiableCertificate, identityKey string) error {
	s, key, err := p.resolveSession(ctx, identityKey)
	if err != nil {
		return err
	}
	return p.sendCertificateResponseForSession(ctx, s, key, req, disclosed)
}

func (p *Peer) sendCertificateResponseForSession(ctx context.Context, s session.PeerSession, identityKey string, req certs.RequestedCertificateSet, disclosed []certs.VerifiableCertificate) error {
	ownKey, err := p.wallet.GetPublicKey(ctx)
	if err != nil {
		return fmt.Errorf("authpeer: reading own public key: %w", err)
	}
	nonce, err := freshNonce()
	if err != nil {
		return err
	}
	data, err := marshalForSigning(disclosed)
	if err != nil {
		return fmt.Errorf("authpeer: encoding disclosed certificates: %w", err)
	}
	sig, err := p.wallet.CreateSignature(ctx, data, wallet.AuthMessageSignatureProtocol, requestKeyID(nonce, s.PeerNonce), identityKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &transport.AuthMessage{
		Version:               transport.Version,
		MessageType:           string(transport.KindCertificateResponse),
		IdentityKey:           ownKey,
		Nonce:                 nonce,
		YourNonce:             s.PeerNonce,
		InitialNonce:          s.SessionNonce,
		RequestedCertificates: req,
		Certificates:          disclosed,
		Signature:             sig,
	}
	if err := p.transport.Send(ctx, out); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	p.setLastInteractedWithPeer(identityKey)
	return nil
}

// requestKeyID is the outbound-composition keyID convention: the fresh
// per-message nonce followed by the counterparty's contributed session
// nonce.
func requestKeyID(nonce, peerNonce string) string {
	return fmt.Sprintf("%s %s", nonce, peerNonce)
}

func freshNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authpeer: generating nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// marshalForSigning produces the canonical JSON serialization used as
// signature input for requestedCertificates/certificates payloads.
// encoding/json.Marshal sorts map keys, making its output for these struct
// shapes stable across calls.
func marshalForSigning(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func concatNonces(a, b string) ([]byte, error) {
	da, err := base64.StdEncoding.DecodeString(a)
	if err != nil {
		return nil, fmt.Errorf("authpeer: decoding nonce: %w", err)
	}
	db, err := base64.StdEncoding.DecodeString(b)
	if err != nil {
		return nil, fmt.Errorf("authpeer: decoding nonce: %w", err)
	}
	return append(da, db...), nil
}
