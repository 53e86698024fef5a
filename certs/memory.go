package certs

import (
	"context"
	"sync"
)

// MemoryStore is a reference CertificateStore holding an in-process list of
// certificates, with no per-verifier selective-disclosure logic beyond the
// type/certifier/field matching ValidateCertificates also performs. Good
// enough for tests; a real wallet would encrypt
// individual fields per verifier before disclosure.
type MemoryStore struct {
	mu    sync.RWMutex
	certs []VerifiableCertificate
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add inserts a certificate into the store.
func (s *MemoryStore) Add(cert VerifiableCertificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs = append(s.certs, cert)
}

// Disclose implements CertificateStore.
func (s *MemoryStore) Disclose(ctx context.Context, req RequestedCertificateSet, verifierIdentityKey string) ([]VerifiableCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []VerifiableCertificate
	for _, cert := range s.certs {
		if !req.certifierAllowed(cert.Certifier) {
			continue
		}
		requiredFields, ok := req.Types[cert.Type]
		if !ok {
			continue
		}
		if !hasAllFields(cert, requiredFields) {
			continue
		}
		matched = append(matched, cert)
	}
	return matched, nil
}

func hasAllFields(cert VerifiableCertificate, fields []string) bool {
	for _, f := range fields {
		if v, ok := cert.Fields[f]; !ok || v == "" {
			return false
		}
	}
	return true
}
