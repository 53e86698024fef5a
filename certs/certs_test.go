package certs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() RequestedCertificateSet {
	return RequestedCertificateSet{
		Certifiers: []string{"certifier-c"},
		Types: map[string][]string{
			"typeT": {"x"},
		},
	}
}

func TestMemoryStoreDisclosesMatchingCertificate(t *testing.T) {
	store := NewMemoryStore()
	store.Add(VerifiableCertificate{
		Type:      "typeT",
		Certifier: "certifier-c",
		Subject:   "subject-a",
		Fields:    map[string]string{"x": "1"},
	})

	got, err := GetVerifiableCertificates(context.Background(), store, sampleRequest(), "verifier-key")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "typeT", got[0].Type)
}

func TestMemoryStoreOmitsNonMatchingCertifier(t *testing.T) {
	store := NewMemoryStore()
	store.Add(VerifiableCertificate{
		Type:      "typeT",
		Certifier: "someone-else",
		Fields:    map[string]string{"x": "1"},
	})

	got, err := GetVerifiableCertificates(context.Background(), store, sampleRequest(), "verifier-key")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetVerifiableCertificatesNilStore(t *testing.T) {
	got, err := GetVerifiableCertificates(context.Background(), nil, sampleRequest(), "verifier-key")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValidateCertificatesAccepts(t *testing.T) {
	certs := []VerifiableCertificate{{
		Type:      "typeT",
		Certifier: "certifier-c",
		Fields:    map[string]string{"x": "1"},
	}}
	assert.NoError(t, ValidateCertificates(certs, sampleRequest()))
}

func TestValidateCertificatesRejectsUnknownCertifier(t *testing.T) {
	certs := []VerifiableCertificate{{
		Type:      "typeT",
		Certifier: "not-requested",
		Fields:    map[string]string{"x": "1"},
	}}
	err := ValidateCertificates(certs, sampleRequest())
	assert.ErrorIs(t, err, ErrCertificateValidation)
}

func TestValidateCertificatesRejectsMissingField(t *testing.T) {
	certs := []VerifiableCertificate{{
		Type:      "typeT",
		Certifier: "certifier-c",
		Fields:    map[string]string{},
	}}
	err := ValidateCertificates(certs, sampleRequest())
	assert.ErrorIs(t, err, ErrCertificateValidation)
}

func TestValidateCertificatesRejectsUnknownType(t *testing.T) {
	certs := []VerifiableCertificate{{
		Type:      "other-type",
		Certifier: "certifier-c",
		Fields:    map[string]string{"x": "1"},
	}}
	err := ValidateCertificates(certs, sampleRequest())
	assert.ErrorIs(t, err, ErrCertificateValidation)
}
