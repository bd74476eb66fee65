// Package blockchain is the gateway to the identity registries on chain.
//
// Three registries hold the identity state: DIDs, Web3 Names and CTypes.
// The Registry interface is implemented by Client, which talks JSON-RPC to
// the registry contracts, and by MemoryLedger, an in-process ledger that
// enforces the same authorization rules.
//
// Every state change is a DID-authorized call. A funded submitter signs and
// pays for the transaction, and the DID key signs an EIP-191 payload that
// binds the action, the DID, the submitter and the DID nonce.
package blockchain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the chain surface used by the wallet.
type Registry interface {
	AccountInfo(ctx context.Context, addr common.Address) (*AccountInfo, error)

	CreateDID(ctx context.Context, req *CreateDIDRequest) (*TxResult, error)
	SetVerificationMethod(ctx context.Context, req *SetVerificationMethodRequest) (*TxResult, error)
	ResolveDID(ctx context.Context, did common.Address) (*DIDRecord, error)

	ClaimName(ctx context.Context, req *NameRequest) (*TxResult, error)
	ReleaseName(ctx context.Context, req *NameRequest) (*TxResult, error)
	NameOf(ctx context.Context, did common.Address) (string, error)
	OwnerOf(ctx context.Context, name string) (common.Address, error)

	RegisterCType(ctx context.Context, req *CTypeRequest) (*TxResult, error)
	CType(ctx context.Context, hash common.Hash) (*CTypeRecord, error)

	Close()
}

// Contracts holds the registry contract addresses.
type Contracts struct {
	DIDRegistry   common.Address
	NameRegistry  common.Address
	CTypeRegistry common.Address
}
