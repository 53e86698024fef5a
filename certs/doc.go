// Package certs implements the CertificateHelpers collaborator: selecting a
// wallet's certificates against a RequestedCertificateSet for disclosure,
// and validating a counterparty's disclosed certificates against that same
// set. Certificate content semantics, issuance, and cryptographic
// verification internals are out of scope — this package treats a
// VerifiableCertificate as an opaque, already-decryptable bundle of fields
// and trusts CertificateStore to know which of its certificates match.
package certs
