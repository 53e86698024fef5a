// Package wallet defines the external collaborator interface the authpeer
// engine uses for identity key material, signing, and nonce primitives.
//
// The protocol core never touches private key bytes directly: every
// signature and every nonce is produced and checked through a Wallet. This
// package also ships MemoryWallet, a reference implementation used by the
// module's own tests — production callers are
// expected to supply their own Wallet backed by real key storage.
package wallet
