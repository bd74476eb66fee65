package blockchain

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed contracts/did_registry_abi.json
var didRegistryABI []byte

//go:embed contracts/name_registry_abi.json
var nameRegistryABI []byte

//go:embed contracts/ctype_registry_abi.json
var ctypeRegistryABI []byte

type registryABI struct {
	once   sync.Once
	source []byte
	parsed abi.ABI
	err    error
}

func (r *registryABI) load() (abi.ABI, error) {
	r.once.Do(func() {
		r.parsed, r.err = abi.JSON(bytes.NewReader(r.source))
		if r.err != nil {
			r.err = fmt.Errorf("failed to parse registry ABI: %w", r.err)
		}
	})

	return r.parsed, r.err
}

var (
	didABI   = &registryABI{source: didRegistryABI}
	nameABI  = &registryABI{source: nameRegistryABI}
	ctypeABI = &registryABI{source: ctypeRegistryABI}
)

// DIDRegistryABI returns the parsed DID registry ABI.
func DIDRegistryABI() (abi.ABI, error) { return didABI.load() }

// NameRegistryABI returns the parsed Web3 Name registry ABI.
func NameRegistryABI() (abi.ABI, error) { return nameABI.load() }

// CTypeRegistryABI returns the parsed CType registry ABI.
func CTypeRegistryABI() (abi.ABI, error) { return ctypeABI.load() }

// MethodName returns the registry method a transaction's calldata invokes.
func MethodName(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("calldata too short: %d bytes", len(data))
	}

	for _, load := range []func() (abi.ABI, error){DIDRegistryABI, NameRegistryABI, CTypeRegistryABI} {
		parsed, err := load()
		if err != nil {
			return "", err
		}
		if m, err := parsed.MethodById(data[:4]); err == nil {
			return m.Name, nil
		}
	}

	return "", fmt.Errorf("unknown registry method 0x%x", data[:4])
}
