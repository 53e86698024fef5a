package certs

import (
	"context"
	"errors"
	"fmt"
)

// RequestedCertificateSet names the certifiers a verifier trusts and, for
// each certificate type it's interested in, the field names it needs
// disclosed.
type RequestedCertificateSet struct {
	Certifiers []string            `json:"certifiers"`
	Types      map[string][]string `json:"types"`
}

// certifierAllowed reports whether certifier appears in the requested set.
func (r RequestedCertificateSet) certifierAllowed(certifier string) bool {
	for _, c := range r.Certifiers {
		if c == certifier {
			return true
		}
	}
	return false
}

// VerifiableCertificate is an opaque certificate disclosed between peers.
// Fields is the selectively-disclosed field set; the core never interprets
// their values, only checks that the ones a request demanded are present.
type VerifiableCertificate struct {
	Type      string            `json:"type"`
	Certifier string            `json:"certifier"`
	Subject   string            `json:"subject"`
	Fields    map[string]string `json:"fields"`
}

// ErrCertificateValidation is returned, wrapped with context, whenever a
// disclosed certificate fails to satisfy a RequestedCertificateSet.
var ErrCertificateValidation = errors.New("certs: certificate validation failed")

// CertificateStore is the wallet facet that holds a party's own
// certificates and can selectively disclose them to a verifier. It is an
// external collaborator; this package ships MemoryStore as a reference
// implementation.
type CertificateStore interface {
	// Disclose returns this store's certificates matching req, prepared for
	// disclosure to verifierIdentityKey. An empty result with a nil error
	// means "no matching certificates", not an error.
	Disclose(ctx context.Context, req RequestedCertificateSet, verifierIdentityKey string) ([]VerifiableCertificate, error)
}

// GetVerifiableCertificates selects store's certificates matching req for
// disclosure to verifierIdentityKey.
func GetVerifiableCertificates(ctx context.Context, store CertificateStore, req RequestedCertificateSet, verifierIdentityKey string) ([]VerifiableCertificate, error) {
	if store == nil {
		return nil, nil
	}
	return store.Disclose(ctx, req, verifierIdentityKey)
}

// ValidateCertificates verifies that every certificate in disclosed
// satisfies req: its certifier must be in req.Certifiers, its type must be
// present in req.Types, and every field name req.Types[type] lists must be
// present (and non-empty) in the certificate's Fields.
func ValidateCertificates(disclosed []VerifiableCertificate, req RequestedCertificateSet) error {
	for _, cert := range disclosed {
		if !req.certifierAllowed(cert.Certifier) {
			return fmt.Errorf("%w: certifier %q not in requested set", ErrCertificateValidation, cert.Certifier)
		}
		requiredFields, ok := req.Types[cert.Type]
		if !ok {
			return fmt.Errorf("%w: type %q not in requested set", ErrCertificateValidation, cert.Type)
		}
		for _, field := range requiredFields {
			value, present := cert.Fields[field]
			if !present || value == "" {
				return fmt.Errorf("%w: certificate of type %q missing required field %q", ErrCertificateValidation, cert.Type, field)
			}
		}
	}
	return nil
}
