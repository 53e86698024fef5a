// Package transport defines the AuthMessage wire format, the MessageCodec
// structural validator, the Transport interface the Peer engine sends and
// receives AuthMessages through, and Pipe — an in-memory reference
// Transport used by this module's own tests and examples. Real transports
// (TCP, WebSocket, anything duplex/framed/reliable) are out of scope; only
// the interface they must satisfy is specified here.
package transport
