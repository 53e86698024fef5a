// Package authpeer implements the core of a peer-to-peer mutual
// authentication protocol engine: two parties exchange signed AuthMessages
// over an abstract transport to prove possession of long-lived identity
// keys, establish an authenticated session identified by exchanged nonces,
// and then exchange signed general payloads and verifiable certificate
// sets under that session.
//
// A Peer owns a SessionManager (package session), delegates identity,
// signing, and nonce operations to a Wallet (package wallet), delegates
// certificate selection/validation to CertificateHelpers (package certs),
// and sends/receives AuthMessages through a Transport (package transport).
//
// # Getting started
//
//	walletA, walletB := wallet.MustNewMemoryWallet(), wallet.MustNewMemoryWallet()
//	pipeA, pipeB := transport.NewPipe()
//
//	peerA := authpeer.NewPeer(walletA, pipeA)
//	peerB := authpeer.NewPeer(walletB, pipeB)
//
//	peerB.ListenForGeneralMessages(func(sender string, payload []byte) {
//		fmt.Printf("got %x from %s\n", payload, sender)
//	})
//
//	bKey, _ := walletB.GetPublicKey(context.Background())
//	err := peerA.ToPeer(context.Background(), []byte{0xDE, 0xAD, 0xBE, 0xEF}, bKey)
package authpeer
