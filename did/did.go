// Package did creates, updates and resolves wallet DIDs.
//
// A DID is named after the account address of its authentication key:
// did:kilt:0x<address>. The document is never stored on chain. The DID
// registry holds the keys and the document hash, and Resolve rebuilds the
// document from that state.
package did

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultMethod is the DID method prefix.
const DefaultMethod = "did:kilt"

var (
	// ErrNotFound is returned when a DID is not anchored on chain.
	ErrNotFound = errors.New("DID not found")
	// ErrInvalidDID is returned for malformed DID URIs.
	ErrInvalidDID = errors.New("invalid DID")
)

// ToDID converts a method and address to a DID.
func ToDID(method, address string) string {
	return strings.ToLower(fmt.Sprintf("%s:%s", method, address))
}

// AddressFromDID parses the address of a DID URI. A non-empty method must
// match the URI's method.
func AddressFromDID(didURI, method string) (common.Address, error) {
	didURI = strings.TrimSpace(didURI)
	if i := strings.IndexAny(didURI, "#?"); i >= 0 {
		didURI = didURI[:i]
	}

	idx := strings.LastIndex(didURI, ":")
	if !strings.HasPrefix(didURI, "did:") || idx <= len("did:") {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidDID, didURI)
	}

	if method != "" && !strings.EqualFold(didURI[:idx], method) {
		return common.Address{}, fmt.Errorf("%w: method of %q is not %s", ErrInvalidDID, didURI, method)
	}

	addr := didURI[idx+1:]
	if !common.IsHexAddress(addr) || !strings.HasPrefix(addr, "0x") {
		return common.Address{}, fmt.Errorf("%w: %q has no valid address", ErrInvalidDID, didURI)
	}

	return common.HexToAddress(addr), nil
}

// AddressFromPublicKeyHex converts a hex-encoded public key to an address.
//
// Supports both compressed (33 bytes) and uncompressed (65 bytes) public
// keys, with or without the "0x" prefix. The address is lower case.
func AddressFromPublicKeyHex(publicKeyHex string) (string, error) {
	publicKeyBytes, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to decode public key hex: %w", err)
	}

	pub, err := secp256k1.ParsePubKey(publicKeyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}

	hash := crypto.Keccak256(pub.SerializeUncompressed()[1:])

	return "0x" + hex.EncodeToString(hash[12:]), nil
}
