package sign

import (
	"context"
	"crypto/ed25519"
	"fmt"
)

// Signer is a service that securely manages a nodes private key
// and signs votes for the consensus engine.
//
// The signer should ensure that the node never double signs. This usually means
// implementing a high-water mark tracking the round and step of the vote.
//
// Make sure the verify function corresponds to the signature scheme used by
// the signer
type Signer interface {
	// ID should return a unique identifier for the signer that can be used
	// to identify the voter within the network. This must always return the
	// same value. For key based signers it is the public key.
	ID() []byte

	Sign(ctx context.Context, mark Watermark, msg []byte) ([]byte, error)
}

type ErrAlreadySigned []uint64

func (e ErrAlreadySigned) Error() string {
	return fmt.Sprintf("already signed msg at mark %d", []uint64(e))
}

// Watermark is a lexicographically ordered position. A signer only signs
// messages whose mark is strictly greater than the last one signed.
type Watermark []uint64

func (w Watermark) Greater(other Watermark) bool {
	for idx, v := range w {
		if idx >= len(other) {
			return true
		}
		if v > other[idx] {
			return true
		}
		if v < other[idx] {
			return false
		}
	}
	return false
}

// Dictates how signatures from voters should be verified. This needs
// to match with the key protocol of the signer.
type VerifyFunc func(publicKey, message, signature []byte) bool

// Default to ed25519
func DefaultVerifyFunc() VerifyFunc {
	return func(publicKey, message, signature []byte) bool {
		if len(publicKey) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(publicKey, message, signature)
	}
}
