// Package account generates and imports wallet keys.
//
// Keys are secp256k1 key pairs. They are either random or derived from a
// BIP-39 mnemonic along a BIP-32 path. One mnemonic yields the account key
// that holds funds and the DID keys that control the wallet's identity.
package account

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

// secp256k1PubCodec is the multicodec prefix for a compressed secp256k1
// public key (0xe7, varint encoded).
var secp256k1PubCodec = []byte{0xe7, 0x01}

// KeyPair is a secp256k1 key pair.
type KeyPair struct {
	PublicKey  *ecdsa.PublicKey
	PrivateKey *ecdsa.PrivateKey
}

// GenerateKeyPair generates a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return newKeyPair(privateKey), nil
}

// KeyPairFromHex loads a key pair from a hex private key.
func KeyPairFromHex(privHex string) (*KeyPair, error) {
	privHex = strings.TrimPrefix(strings.TrimSpace(privHex), "0x")
	if len(privHex) == 0 || len(privHex)%2 != 0 {
		return nil, fmt.Errorf("invalid private key: empty or odd length")
	}

	privateKey, err := crypto.HexToECDSA(privHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return newKeyPair(privateKey), nil
}

// KeyPairFromECDSA wraps an existing private key.
func KeyPairFromECDSA(privateKey *ecdsa.PrivateKey) (*KeyPair, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	return newKeyPair(privateKey), nil
}

func newKeyPair(privateKey *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{
		PublicKey:  &privateKey.PublicKey,
		PrivateKey: privateKey,
	}
}

// GetAddress returns the lower-case hex address of the key pair.
func (k *KeyPair) GetAddress() string {
	if k == nil || k.PublicKey == nil {
		return ""
	}

	return strings.ToLower(crypto.PubkeyToAddress(*k.PublicKey).Hex())
}

// GetPublicKeyHex returns the compressed public key in hex format.
func (k *KeyPair) GetPublicKeyHex() string {
	if k == nil || k.PublicKey == nil {
		return ""
	}

	return fmt.Sprintf("0x%x", crypto.CompressPubkey(k.PublicKey))
}

// GetPrivateKeyHex returns the private key in hex format.
func (k *KeyPair) GetPrivateKeyHex() string {
	if k == nil || k.PrivateKey == nil {
		return ""
	}

	return fmt.Sprintf("0x%x", crypto.FromECDSA(k.PrivateKey))
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *KeyPair) PublicKeyBytes() []byte {
	if k == nil || k.PublicKey == nil {
		return nil
	}

	return crypto.CompressPubkey(k.PublicKey)
}

// PublicKeyMultibase returns the public key as a base58btc multibase string
// with the secp256k1-pub multicodec prefix.
func (k *KeyPair) PublicKeyMultibase() string {
	if k == nil || k.PublicKey == nil {
		return ""
	}

	return EncodeMultibase(crypto.CompressPubkey(k.PublicKey))
}

// Signer returns a signer provider backed by the private key.
func (k *KeyPair) Signer() (signer.SignerProvider, error) {
	if k == nil {
		return nil, fmt.Errorf("key pair is nil")
	}

	return signer.NewProviderFromKey(k.PrivateKey)
}

// EncodeMultibase encodes a compressed secp256k1 public key as multibase.
func EncodeMultibase(compressed []byte) string {
	buf := make([]byte, 0, len(secp256k1PubCodec)+len(compressed))
	buf = append(buf, secp256k1PubCodec...)
	buf = append(buf, compressed...)

	return "z" + base58.Encode(buf)
}

// DecodeMultibase decodes a multibase secp256k1 public key back into its
// compressed form.
func DecodeMultibase(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "z") {
		return nil, fmt.Errorf("unsupported multibase prefix in %q", s)
	}

	raw, err := base58.Decode(s[1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58: %w", err)
	}
	if len(raw) != len(secp256k1PubCodec)+33 || raw[0] != secp256k1PubCodec[0] || raw[1] != secp256k1PubCodec[1] {
		return nil, fmt.Errorf("not a secp256k1 multibase key")
	}

	return raw[len(secp256k1PubCodec):], nil
}
