package transport

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned by Send once a Transport has been closed.
var ErrTransportClosed = errors.New("transport: closed")

// Transport is the external collaborator the Peer sends AuthMessages
// through and receives them from. Any duplex, framed, reliable, in-order
// message carrier satisfies it; retry and reordering are explicitly the
// transport's problem, not the Peer's.
type Transport interface {
	// Send hands msg to the transport for delivery to whatever counterparty
	// this Transport is bound to.
	Send(ctx context.Context, msg *AuthMessage) error

	// OnData registers handler to be invoked once per inbound AuthMessage.
	// Only one handler is supported; a later call replaces the earlier one,
	// matching the Peer's single dispatcher (it never needs more than one).
	OnData(handler func(*AuthMessage))
}
