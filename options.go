package authpeer

import (
	"time"

	"github.com/authpeer/authpeer/certs"
	"github.com/sirupsen/logrus"
)

// defaultMaxWaitTime is the default ceiling InitiateHandshake waits for a
// counterparty's initialResponse before returning ErrHandshakeTimeout.
const defaultMaxWaitTime = 10 * time.Second

type options struct {
	autoPersistLastSession bool
	maxWaitTime            time.Duration
	logger                 *logrus.Entry
	certStore              certs.CertificateStore
	certRequestOnHandshake *certs.RequestedCertificateSet
	certRequestOnAccept    *certs.RequestedCertificateSet
}

func defaultOptions() options {
	return options{
		autoPersistLastSession: true,
		maxWaitTime:            defaultMaxWaitTime,
		logger:                 logrus.WithField("component", "authpeer.Peer"),
	}
}

// Option configures a Peer at construction time via the functional-options
// pattern.
type Option func(*options)

// WithAutoPersistLastSession controls whether ToPeer/RequestCertificates/
// SendCertificateResponse may default a blank identityKey to the most
// recently interacted-with peer. Enabled by default.
func WithAutoPersistLastSession(enabled bool) Option {
	return func(o *options) { o.autoPersistLastSession = enabled }
}

// WithMaxWaitTime overrides the default time InitiateHandshake waits for an
// initialResponse.
func WithMaxWaitTime(d time.Duration) Option {
	return func(o *options) { o.maxWaitTime = d }
}

// WithLogger overrides the Peer's structured logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithCertificateStore supplies the CertificateStore consulted to disclose
// this Peer's own certificates when a counterparty requests them, either
// during the handshake (requestedCertificates on an inbound initialRequest)
// or via an explicit certificateRequest.
func WithCertificateStore(store certs.CertificateStore) Option {
	return func(o *options) { o.certStore = store }
}

// WithCertificateRequestOnHandshake makes every outbound initialRequest
// carry req, asking the responder to disclose matching certificates in its
// initialResponse.
func WithCertificateRequestOnHandshake(req certs.RequestedCertificateSet) Option {
	return func(o *options) { o.certRequestOnHandshake = &req }
}

// WithCertificateRequestOnAccept makes every outbound initialResponse carry
// req as a nested requestedCertificates, asking the initiator to disclose
// matching certificates back.
func WithCertificateRequestOnAccept(req certs.RequestedCertificateSet) Option {
	return func(o *options) { o.certRequestOnAccept = &req }
}
