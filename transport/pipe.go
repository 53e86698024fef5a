package transport

import (
	"context"

	"github.com/authpeer/authpeer/certs"
)

// Pipe is an in-memory reference Transport connecting exactly two
// endpoints, delivering each Send synchronously into the peer's registered
// handler, so inbound messages are always processed to completion one at a
// time before the next one arrives. NewPipe returns both ends already wired
// together.
type Pipe struct {
	peer    *Pipe
	handler func(*AuthMessage)
	closed  bool
}

// NewPipe returns two connected Pipe endpoints; sending on one invokes the
// other's registered handler.
func NewPipe() (a, b *Pipe) {
	a = &Pipe{}
	b = &Pipe{}
	a.peer = b
	b.peer = a
	return a, b
}

// OnData implements Transport.
func (p *Pipe) OnData(handler func(*AuthMessage)) {
	p.handler = handler
}

// Send implements Transport. It delivers a deep copy of msg to the peer's
// handler so neither side can observe the other mutating its own AuthMessage
// after sending.
func (p *Pipe) Send(ctx context.Context, msg *AuthMessage) error {
	if p.closed {
		return ErrTransportClosed
	}
	if p.peer.closed {
		return ErrTransportClosed
	}
	if p.peer.handler == nil {
		return nil
	}
	p.peer.handler(cloneMessage(msg))
	return nil
}

// Close marks the endpoint closed; subsequent Sends from either side fail
// with ErrTransportClosed.
func (p *Pipe) Close() error {
	p.closed = true
	return nil
}

func cloneMessage(msg *AuthMessage) *AuthMessage {
	clone := *msg
	clone.Payload = append([]byte(nil), msg.Payload...)
	clone.Signature = append([]byte(nil), msg.Signature...)
	if msg.Certificates != nil {
		clone.Certificates = make([]certs.VerifiableCertificate, len(msg.Certificates))
		for i, c := range msg.Certificates {
			if c.Fields != nil {
				fields := make(map[string]string, len(c.Fields))
				for k, v := range c.Fields {
					fields[k] = v
				}
				c.Fields = fields
			}
			clone.Certificates[i] = c
		}
	}
	if msg.RequestedCertificates.Certifiers != nil {
		clone.RequestedCertificates.Certifiers = append([]string{}, msg.RequestedCertificates.Certifiers...)
	}
	if msg.RequestedCertificates.Types != nil {
		types := make(map[string][]string, len(msg.RequestedCertificates.Types))
		for k, v := range msg.RequestedCertificates.Types {
			types[k] = append([]string(nil), v...)
		}
		clone.RequestedCertificates.Types = types
	}
	return &clone
}
