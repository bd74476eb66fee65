// Package signer defines the signing abstraction shared by submitters and
// DID keys.
//
// A SignerProvider signs 32-byte digests and reports the address of the key
// it signs with. Keys may live in memory (DefaultProvider) or behind a
// signing service (RemoteProvider).
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignerProvider is the interface for the signer provider.
type SignerProvider interface {
	// Sign signs a 32-byte digest and returns a 65-byte [R || S || V] signature.
	Sign(hash []byte) ([]byte, error)
	// GetAddress returns the lower-case hex address of the signing key.
	GetAddress() string
}

// DefaultProvider signs with an in-memory secp256k1 key.
type DefaultProvider struct {
	priv *ecdsa.PrivateKey
}

// NewDefaultProvider creates a signer provider from a hex private key, with
// or without the 0x prefix.
func NewDefaultProvider(privHex string) (*DefaultProvider, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &DefaultProvider{priv: priv}, nil
}

// NewProviderFromKey wraps an existing private key.
func NewProviderFromKey(priv *ecdsa.PrivateKey) (*DefaultProvider, error) {
	if priv == nil {
		return nil, fmt.Errorf("private key is required")
	}

	return &DefaultProvider{priv: priv}, nil
}

// Sign signs the digest.
func (s *DefaultProvider) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	signature, err := crypto.Sign(hash, s.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	if len(signature) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(signature))
	}

	return signature, nil
}

// GetAddress returns the address of the signer.
func (s *DefaultProvider) GetAddress() string {
	return strings.ToLower(crypto.PubkeyToAddress(s.priv.PublicKey).Hex())
}

// PublicKey returns the public half of the signing key.
func (s *DefaultProvider) PublicKey() *ecdsa.PublicKey {
	return &s.priv.PublicKey
}
