package transport

import (
	"testing"

	"github.com/authpeer/authpeer/certs"
	"github.com/stretchr/testify/assert"
)

func TestValidateInitialRequest(t *testing.T) {
	msg := &AuthMessage{
		Version:      Version,
		MessageType:  string(KindInitialRequest),
		IdentityKey:  "id",
		InitialNonce: "nonce",
	}
	kind, err := Validate(msg)
	assert.NoError(t, err)
	assert.Equal(t, KindInitialRequest, kind)
}

func TestValidateInitialRequestMissingField(t *testing.T) {
	msg := &AuthMessage{
		Version:     Version,
		MessageType: string(KindInitialRequest),
		IdentityKey: "id",
	}
	_, err := Validate(msg)
	assert.ErrorIs(t, err, ErrStructural)
}

func TestValidateRejectsVersionMismatch(t *testing.T) {
	msg := &AuthMessage{
		Version:      "9.9",
		MessageType:  string(KindInitialRequest),
		IdentityKey:  "id",
		InitialNonce: "nonce",
	}
	_, err := Validate(msg)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestValidateRejectsUnknownMessageType(t *testing.T) {
	msg := &AuthMessage{
		Version:     Version,
		MessageType: "somethingElse",
		IdentityKey: "id",
	}
	_, err := Validate(msg)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestValidateGeneralRequiresPayloadAndSignature(t *testing.T) {
	base := &AuthMessage{
		Version:     Version,
		MessageType: string(KindGeneral),
		IdentityKey: "id",
		Nonce:       "n",
		YourNonce:   "yn",
	}
	_, err := Validate(base)
	assert.ErrorIs(t, err, ErrStructural, "missing payload and signature")

	withPayload := *base
	withPayload.Payload = []byte("hi")
	_, err = Validate(&withPayload)
	assert.ErrorIs(t, err, ErrStructural, "missing signature")

	withBoth := withPayload
	withBoth.Signature = []byte("sig")
	_, err = Validate(&withBoth)
	assert.NoError(t, err)
}

func TestValidateCertificateResponseRequiresCertificatesField(t *testing.T) {
	msg := &AuthMessage{
		Version:     Version,
		MessageType: string(KindCertificateResponse),
		IdentityKey: "id",
		Nonce:       "n",
		YourNonce:   "yn",
		Signature:   []byte("sig"),
	}
	_, err := Validate(msg)
	assert.ErrorIs(t, err, ErrStructural)

	msg.Certificates = []certs.VerifiableCertificate{{Type: "t", Certifier: "c", Fields: map[string]string{"x": "1"}}}
	_, err = Validate(msg)
	assert.NoError(t, err)
}
