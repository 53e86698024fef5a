package authpeer

import (
	"sync"

	"github.com/authpeer/authpeer/certs"
	"github.com/authpeer/authpeer/transport"
)

// GeneralMessageHandler receives a post-handshake payload from senderIdentityKey.
type GeneralMessageHandler func(senderIdentityKey string, payload []byte)

// CertificatesReceivedHandler receives a disclosed certificate set from senderIdentityKey.
type CertificatesReceivedHandler func(senderIdentityKey string, certificates []certs.VerifiableCertificate)

// CertificatesRequestedHandler receives a certificate request from senderIdentityKey.
type CertificatesRequestedHandler func(senderIdentityKey string, req certs.RequestedCertificateSet)

type initialResponseHandler func(msg *transport.AuthMessage)

type initialResponseEntry struct {
	sessionNonce string
	handler      initialResponseHandler
}

// callbackRegistry holds all four listener kinds a Peer supports —
// generalMessageReceived, certificatesReceived, certificatesRequested, and
// the internal initialResponseReceived — behind one shared, monotonically
// increasing uint64 ID space. This is deliberate, not an oversight:
// StopListeningForGeneralMessages can be handed an ID that was actually
// returned by ListenForCertificatesReceived without erroring, it simply does
// nothing (the ID isn't present in that kind's map). Callers that keep their
// IDs straight never notice; each kind keeps its own map but shares the
// counter rather than getting one of its own.
type callbackRegistry struct {
	mu     sync.Mutex
	nextID uint64

	general         map[uint64]GeneralMessageHandler
	certsReceived   map[uint64]CertificatesReceivedHandler
	certsRequested  map[uint64]CertificatesRequestedHandler
	initialResponse map[uint64]initialResponseEntry
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{
		general:         make(map[uint64]GeneralMessageHandler),
		certsReceived:   make(map[uint64]CertificatesReceivedHandler),
		certsRequested:  make(map[uint64]CertificatesRequestedHandler),
		initialResponse: make(map[uint64]initialResponseEntry),
	}
}

func (r *callbackRegistry) addGeneral(h GeneralMessageHandler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.general[id] = h
	return id
}

func (r *callbackRegistry) removeGeneral(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.general, id)
}

func (r *callbackRegistry) addCertsReceived(h CertificatesReceivedHandler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.certsReceived[id] = h
	return id
}

func (r *callbackRegistry) removeCertsReceived(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.certsReceived, id)
}

func (r *callbackRegistry) addCertsRequested(h CertificatesRequestedHandler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.certsRequested[id] = h
	return id
}

func (r *callbackRegistry) removeCertsRequested(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.certsRequested, id)
}

func (r *callbackRegistry) addInitialResponse(sessionNonce string, h initialResponseHandler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.initialResponse[id] = initialResponseEntry{sessionNonce: sessionNonce, handler: h}
	return id
}

func (r *callbackRegistry) removeInitialResponse(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.initialResponse, id)
}

func (r *callbackRegistry) fireGeneralMessage(sender string, payload []byte) {
	r.mu.Lock()
	handlers := make([]GeneralMessageHandler, 0, len(r.general))
	for _, h := range r.general {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()
	for _, h := range handlers {
		h(sender, payload)
	}
}

func (r *callbackRegistry) fireCertsReceived(sender string, list []certs.VerifiableCertificate) {
	r.mu.Lock()
	handlers := make([]CertificatesReceivedHandler, 0, len(r.certsReceived))
	for _, h := range r.certsReceived {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()
	for _, h := range handlers {
		h(sender, list)
	}
}

func (r *callbackRegistry) fireCertsRequested(sender string, req certs.RequestedCertificateSet) {
	r.mu.Lock()
	handlers := make([]CertificatesRequestedHandler, 0, len(r.certsRequested))
	for _, h := range r.certsRequested {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()
	for _, h := range handlers {
		h(sender, req)
	}
}

func (r *callbackRegistry) fireInitialResponse(sessionNonce string, msg *transport.AuthMessage) {
	r.mu.Lock()
	var matched []initialResponseHandler
	for _, e := range r.initialResponse {
		if e.sessionNonce == sessionNonce {
			matched = append(matched, e.handler)
		}
	}
	r.mu.Unlock()
	for _, h := range matched {
		h(msg)
	}
}
