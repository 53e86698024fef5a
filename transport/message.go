package transport

import (
	"fmt"

	"github.com/authpeer/authpeer/certs"
)

// Version is the fixed protocol version string. There is no negotiation of
// a different version; any AuthMessage carrying a different value is
// dropped by Validate.
const Version = "0.1"

// Kind is the AuthMessage's tagged variant, resolved from its MessageType
// string by Validate. Processors switch on Kind rather than
// re-checking MessageType strings.
type Kind string

const (
	KindInitialRequest      Kind = "initialRequest"
	KindInitialResponse     Kind = "initialResponse"
	KindCertificateRequest  Kind = "certificateRequest"
	KindCertificateResponse Kind = "certificateResponse"
	KindGeneral             Kind = "general"
)

// AuthMessage is the on-wire record. Which fields are
// meaningful depends on MessageType; Validate enforces the
// per-kind required-field table before the rest of the code relies on
// anything being set.
type AuthMessage struct {
	Version     string `json:"version"`
	MessageType string `json:"messageType"`
	IdentityKey string `json:"identityKey"`

	InitialNonce string `json:"initialNonce,omitempty"`
	YourNonce    string `json:"yourNonce,omitempty"`
	Nonce        string `json:"nonce,omitempty"`

	RequestedCertificates certs.RequestedCertificateSet `json:"requestedCertificates,omitempty"`
	Certificates          []certs.VerifiableCertificate `json:"certificates,omitempty"`

	Payload   []byte `json:"payload,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// ErrUnknownMessageType is returned by Validate for a MessageType value not
// in the fixed set of five kinds. The dispatcher logs and drops a message
// failing with this error, distinct from every other validation failure
// which is a processing error for the message's own kind.
var ErrUnknownMessageType = fmt.Errorf("transport: unknown messageType")

// ErrVersionMismatch is returned by Validate when the message's Version
// field does not equal Version. Like ErrUnknownMessageType, the dispatcher drops
// the message silently rather than treating this as a processor failure.
var ErrVersionMismatch = fmt.Errorf("transport: version mismatch")

// ErrStructural is returned, wrapped with the missing field's name, when a
// required field for the message's kind is missing, null, or empty.
var ErrStructural = fmt.Errorf("transport: structural validation failed")

var requiredStringFields = map[Kind][]string{
	KindInitialRequest:      {"IdentityKey", "InitialNonce"},
	KindInitialResponse:     {"IdentityKey", "InitialNonce", "YourNonce"},
	KindCertificateRequest:  {"IdentityKey", "Nonce", "YourNonce"},
	KindCertificateResponse: {"IdentityKey", "Nonce", "YourNonce"},
	KindGeneral:             {"IdentityKey", "Nonce", "YourNonce"},
}

// Validate checks msg.Version, resolves msg.MessageType to a Kind, and
// checks the required-field table for that Kind. It returns the resolved
// Kind on success.
func Validate(msg *AuthMessage) (Kind, error) {
	if msg.Version != Version {
		return "", fmt.Errorf("%w: got %q want %q", ErrVersionMismatch, msg.Version, Version)
	}

	kind := Kind(msg.MessageType)
	fields, ok := requiredStringFields[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.MessageType)
	}

	for _, field := range fields {
		if fieldEmpty(msg, field) {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, field, kind)
		}
	}

	switch kind {
	case KindInitialResponse:
		if len(msg.Signature) == 0 {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, "Signature", kind)
		}
	case KindCertificateRequest:
		if len(msg.Signature) == 0 {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, "Signature", kind)
		}
	case KindCertificateResponse:
		if len(msg.Signature) == 0 {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, "Signature", kind)
		}
		if msg.Certificates == nil {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, "Certificates", kind)
		}
	case KindGeneral:
		if len(msg.Signature) == 0 {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, "Signature", kind)
		}
		if msg.Payload == nil {
			return "", fmt.Errorf("%w: missing field %q for messageType %q", ErrStructural, "Payload", kind)
		}
	}

	return kind, nil
}

func fieldEmpty(msg *AuthMessage, field string) bool {
	switch field {
	case "IdentityKey":
		return msg.IdentityKey == ""
	case "InitialNonce":
		return msg.InitialNonce == ""
	case "YourNonce":
		return msg.YourNonce == ""
	case "Nonce":
		return msg.Nonce == ""
	default:
		return false
	}
}
