package sign

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
)

var _ Signer = (*KeySigner)(nil)

// KeySigner signs with an in memory ed25519 key and keeps the watermark of the
// last signed message in memory. The watermark is lost on restart.
type KeySigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	mtx       sync.Mutex
	watermark Watermark
}

// NewKeySigner generates a fresh key
func NewKeySigner() *KeySigner {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &KeySigner{
		privateKey: priv,
		publicKey:  pub,
	}
}

// NewKeySignerFromSeed derives the key from a 32 byte seed
func NewKeySignerFromSeed(seed []byte) (*KeySigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("ed25519 seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeySigner{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

func (s *KeySigner) Sign(_ context.Context, watermark Watermark, msg []byte) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !watermark.Greater(s.watermark) {
		return nil, ErrAlreadySigned(s.watermark)
	}
	s.watermark = watermark
	return ed25519.Sign(s.privateKey, msg), nil
}

func (s *KeySigner) ID() []byte {
	return s.publicKey
}

func (s *KeySigner) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

func (s *KeySigner) Watermark() Watermark {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.watermark
}
