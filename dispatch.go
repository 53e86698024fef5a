package authpeer

import (
	"context"
	"errors"
	"fmt"

	"github.com/authpeer/authpeer/certs"
	"github.com/authpeer/authpeer/session"
	"github.com/authpeer/authpeer/transport"
	"github.com/authpeer/authpeer/wallet"
	"github.com/sirupsen/logrus"
)

// dispatch is registered with Transport.OnData. It never returns anything
// to the transport — validation failures and processor errors are logged
// and the message is dropped. A single inbound message is always run to
// completion here before the next one is dispatched.
func (p *Peer) dispatch(msg *transport.AuthMessage) {
	kind, err := transport.Validate(msg)
	if err != nil {
		if errors.Is(err, transport.ErrUnknownMessageType) || errors.Is(err, transport.ErrVersionMismatch) {
			p.logger.WithError(err).Warn("dropping message")
			return
		}
		p.logger.WithError(err).Warn("rejecting structurally invalid message")
		return
	}

	ctx := context.Background()
	var procErr error
	switch kind {
	case transport.KindInitialRequest:
		procErr = p.processInitialRequest(ctx, msg)
	case transport.KindInitialResponse:
		procErr = p.processInitialResponse(ctx, msg)
	case transport.KindCertificateRequest:
		procErr = p.processCertificateRequest(ctx, msg)
	case transport.KindCertificateResponse:
		procErr = p.processCertificateResponse(ctx, msg)
	case transport.KindGeneral:
		procErr = p.processGeneralMessage(ctx, msg)
	}

	if procErr != nil {
		p.logger.WithFields(logrus.Fields{
			"messageType": kind,
			"identityKey": msg.IdentityKey,
		}).WithError(procErr).Error("processing inbound message failed")
	}
}

// processInitialRequest is the responder's half of the handshake: mint a
// session nonce, create an Authenticated session immediately (this side
// commits before mutual auth is proven — see PeerSession.IsAuthenticated),
// optionally disclose certificates the request asked for, and sign and
// send the initialResponse.
func (p *Peer) processInitialRequest(ctx context.Context, msg *transport.AuthMessage) error {
	ownKey, err := p.wallet.GetPublicKey(ctx)
	if err != nil {
		return fmt.Errorf("authpeer: reading own public key: %w", err)
	}
	nonce, err := wallet.CreateNonce(ctx, p.wallet)
	if err != nil {
		return fmt.Errorf("authpeer: minting session nonce: %w", err)
	}

	var disclosed []certs.VerifiableCertificate
	if len(msg.RequestedCertificates.Certifiers) > 0 {
		disclosed, err = certs.GetVerifiableCertificates(ctx, p.certStore, msg.RequestedCertificates, msg.IdentityKey)
		if err != nil {
			return fmt.Errorf("authpeer: disclosing certificates: %w", err)
		}
	}

	h := p.sessions.AddSession(session.PeerSession{
		SessionNonce:    nonce,
		PeerNonce:       msg.InitialNonce,
		PeerIdentityKey: msg.IdentityKey,
		IsAuthenticated: true,
	})

	data, err := concatNonces(msg.InitialNonce, nonce)
	if err != nil {
		p.sessions.RemoveSession(h)
		return fmt.Errorf("authpeer: preparing initialResponse signature: %w", err)
	}
	keyID := requestKeyID(msg.InitialNonce, nonce)
	sig, err := p.wallet.CreateSignature(ctx, data, wallet.AuthMessageSignatureProtocol, keyID, msg.IdentityKey)
	if err != nil {
		p.sessions.RemoveSession(h)
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &transport.AuthMessage{
		Version:      transport.Version,
		MessageType:  string(transport.KindInitialResponse),
		IdentityKey:  ownKey,
		InitialNonce: nonce,
		YourNonce:    msg.InitialNonce,
		Signature:    sig,
	}
	if len(disclosed) > 0 {
		out.Certificates = disclosed
	}
	if p.opts.certRequestOnAccept != nil {
		out.RequestedCertificates = *p.opts.certRequestOnAccept
	}

	if err := p.transport.Send(ctx, out); err != nil {
		p.sessions.RemoveSession(h)
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	p.setLastInteractedWithPeer(msg.IdentityKey)
	return nil
}

// processInitialResponse only routes the message to whichever
// InitiateHandshake call is waiting on this sessionNonce (keyed by
// msg.YourNonce, the initiator's own nonce echoed back) — the actual
// signature and nonce verification happens in completeHandshakeAsInitiator,
// run by that waiting call, not here. A response with no matching waiter
// (late, unsolicited, or duplicate) is dropped silently.
func (p *Peer) processInitialResponse(_ context.Context, msg *transport.AuthMessage) error {
	p.cb.fireInitialResponse(msg.YourNonce, msg)
	return nil
}

// completeHandshakeAsInitiator verifies msg as the initialResponse to the
// initialRequest that created the pending session at h, and on success
// transitions that session to Authenticated.
func (p *Peer) completeHandshakeAsInitiator(ctx context.Context, h session.Handle, msg *transport.AuthMessage) (session.PeerSession, error) {
	ok, err := wallet.VerifyNonce(ctx, p.wallet, msg.YourNonce)
	if err != nil {
		p.sessions.RemoveSession(h)
		return session.PeerSession{}, fmt.Errorf("authpeer: verifying yourNonce: %w", err)
	}
	if !ok {
		p.sessions.RemoveSession(h)
		return session.PeerSession{}, ErrNonceRejected
	}

	s, got, ok := p.sessions.GetSession(session.BySessionNonce, msg.YourNonce)
	if !ok || got != h {
		return session.PeerSession{}, &session.ErrSessionMissing{Lookup: session.BySessionNonce, Key: msg.YourNonce}
	}

	data, err := concatNonces(s.SessionNonce, msg.InitialNonce)
	if err != nil {
		p.sessions.RemoveSession(h)
		return session.PeerSession{}, fmt.Errorf("authpeer: preparing initialResponse verification: %w", err)
	}
	keyID := requestKeyID(s.SessionNonce, msg.InitialNonce)
	valid, err := p.wallet.VerifySignature(ctx, data, msg.Signature, wallet.AuthMessageSignatureProtocol, keyID, msg.IdentityKey)
	if err != nil {
		p.sessions.RemoveSession(h)
		return session.PeerSession{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !valid {
		p.sessions.RemoveSession(h)
		return session.PeerSession{}, ErrSignatureInvalid
	}

	s.PeerNonce = msg.InitialNonce
	s.PeerIdentityKey = msg.IdentityKey
	s.IsAuthenticated = true
	if err := p.sessions.UpdateSession(h, s); err != nil {
		return session.PeerSession{}, err
	}

	p.setLastInteractedWithPeer(msg.IdentityKey)
	if len(msg.Certificates) > 0 {
		p.cb.fireCertsReceived(msg.IdentityKey, msg.Certificates)
	}
	if len(msg.RequestedCertificates.Certifiers) > 0 {
		p.cb.fireCertsRequested(msg.IdentityKey, msg.RequestedCertificates)
		if err := p.autoRespondToCertificateRequest(ctx, s, msg.IdentityKey, msg.RequestedCertificates); err != nil {
			return session.PeerSession{}, err
		}
	}
	return s, nil
}

// autoRespondToCertificateRequest mirrors processCertificateRequest's
// auto-reply: when a CertificateStore is configured and it holds
// certificates matching req, send them back as a certificateResponse. A nil
// store or no matches is not an error — it just means nothing is sent.
func (p *Peer) autoRespondToCertificateRequest(ctx context.Context, s session.PeerSession, identityKey string, req certs.RequestedCertificateSet) error {
	if p.certStore == nil {
		return nil
	}
	disclosed, err := certs.GetVerifiableCertificates(ctx, p.certStore, req, identityKey)
	if err != nil {
		return fmt.Errorf("authpeer: disclosing certificates: %w", err)
	}
	if len(disclosed) == 0 {
		return nil
	}
	return p.sendCertificateResponseForSession(ctx, s, identityKey, req, disclosed)
}

// processCertificateRequest verifies an inbound certificateRequest, fires
// certificatesRequested listeners, and — when a CertificateStore is
// configured and it holds matching certificates — automatically replies
// with a certificateResponse.
func (p *Peer) processCertificateRequest(ctx context.Context, msg *transport.AuthMessage) error {
	s, err := p.lookupAuthenticatedSession(ctx, msg)
	if err != nil {
		return err
	}

	data, err := marshalForSigning(msg.RequestedCertificates)
	if err != nil {
		return fmt.Errorf("authpeer: encoding requested certificates: %w", err)
	}
	keyID := requestKeyID(msg.Nonce, s.SessionNonce)
	valid, err := p.wallet.VerifySignature(ctx, data, msg.Signature, wallet.AuthMessageSignatureProtocol, keyID, msg.IdentityKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !valid {
		return ErrSignatureInvalid
	}

	p.setLastInteractedWithPeer(msg.IdentityKey)
	p.cb.fireCertsRequested(msg.IdentityKey, msg.RequestedCertificates)
	return p.autoRespondToCertificateRequest(ctx, s, msg.IdentityKey, msg.RequestedCertificates)
}

// processCertificateResponse verifies an inbound certificateResponse,
// validates its disclosed certificates against the RequestedCertificates it
// echoes (validated against what the response itself claims to answer, not
// an independently-tracked request), and fires certificatesReceived
// listeners.
func (p *Peer) processCertificateResponse(ctx context.Context, msg *transport.AuthMessage) error {
	s, err := p.lookupAuthenticatedSession(ctx, msg)
	if err != nil {
		return err
	}

	data, err := marshalForSigning(msg.Certificates)
	if err != nil {
		return fmt.Errorf("authpeer: encoding disclosed certificates: %w", err)
	}
	keyID := requestKeyID(msg.Nonce, s.SessionNonce)
	valid, err := p.wallet.VerifySignature(ctx, data, msg.Signature, wallet.AuthMessageSignatureProtocol, keyID, msg.IdentityKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !valid {
		return ErrSignatureInvalid
	}

	if err := certs.ValidateCertificates(msg.Certificates, msg.RequestedCertificates); err != nil {
		return err
	}

	p.setLastInteractedWithPeer(msg.IdentityKey)
	p.cb.fireCertsReceived(msg.IdentityKey, msg.Certificates)
	return nil
}

// processGeneralMessage verifies an inbound general message's signature
// and fires generalMessageReceived listeners with its payload.
func (p *Peer) processGeneralMessage(ctx context.Context, msg *transport.AuthMessage) error {
	s, err := p.lookupAuthenticatedSession(ctx, msg)
	if err != nil {
		return err
	}

	keyID := requestKeyID(msg.Nonce, s.SessionNonce)
	valid, err := p.wallet.VerifySignature(ctx, msg.Payload, msg.Signature, wallet.AuthMessageSignatureProtocol, keyID, msg.IdentityKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !valid {
		return ErrSignatureInvalid
	}

	p.setLastInteractedWithPeer(msg.IdentityKey)
	p.cb.fireGeneralMessage(msg.IdentityKey, msg.Payload)
	return nil
}

// lookupAuthenticatedSession resolves the Authenticated session a
// post-handshake message (certificateRequest/certificateResponse/general)
// claims to belong to, by the receiver's own nonce echoed as YourNonce. It
// first verifies that YourNonce is actually one this wallet minted — a
// forged or replayed YourNonce is rejected with ErrNonceRejected before any
// session lookup happens — and then checks that the claimed IdentityKey
// actually matches the session it names.
func (p *Peer) lookupAuthenticatedSession(ctx context.Context, msg *transport.AuthMessage) (session.PeerSession, error) {
	ok, err := wallet.VerifyNonce(ctx, p.wallet, msg.YourNonce)
	if err != nil {
		return session.PeerSession{}, fmt.Errorf("authpeer: verifying yourNonce: %w", err)
	}
	if !ok {
		return session.PeerSession{}, ErrNonceRejected
	}

	s, _, found := p.sessions.GetSession(session.BySessionNonce, msg.YourNonce)
	if !found {
		return session.PeerSession{}, &session.ErrSessionMissing{Lookup: session.BySessionNonce, Key: msg.YourNonce}
	}
	if !s.IsAuthenticated || s.PeerIdentityKey != msg.IdentityKey {
		return session.PeerSession{}, ErrSessionIncomplete
	}
	return s, nil
}
