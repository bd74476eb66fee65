package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

var (
	// ErrDIDNotFound is returned when the DID registry has no record for an address.
	ErrDIDNotFound = errors.New("DID not found")
	// ErrCTypeNotFound is returned when a CType hash is not anchored.
	ErrCTypeNotFound = errors.New("CType not found on chain")
	// ErrInsufficientFunds is returned when the submitter cannot pay the fee.
	ErrInsufficientFunds = errors.New("insufficient funds for transaction fee")
	// ErrNotSent is returned when a transaction was signed in no-send mode.
	ErrNotSent = errors.New("transaction signed but not sent")
)

// TxStatus is the outcome of a submitted transaction.
type TxStatus string

// TxStatus constants.
const (
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusSigned    TxStatus = "signed"
	TxStatusUnknown   TxStatus = "unknown"
)

// TxResult describes a transaction after submission.
type TxResult struct {
	Status      TxStatus
	TxHash      string
	BlockNumber uint64
	// RawTx holds the RLP hex of the signed transaction when it was not sent.
	RawTx string
	// Reason explains a failed status when the ledger reports one.
	Reason string
}

// Confirmed reports whether the transaction was included and succeeded.
func (r *TxResult) Confirmed() bool {
	return r != nil && r.Status == TxStatusConfirmed
}

// UnsentTxError carries a transaction signed but not submitted.
type UnsentTxError struct {
	Tx *TxResult
}

func (e *UnsentTxError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotSent, e.Tx.TxHash)
}

func (e *UnsentTxError) Unwrap() error {
	return ErrNotSent
}

// Unsent returns an *UnsentTxError when r was signed but not sent, and nil
// otherwise.
func Unsent(r *TxResult) error {
	if r != nil && r.Status == TxStatusSigned {
		return &UnsentTxError{Tx: r}
	}

	return nil
}

// StatusString returns the status, or "unknown" for a nil result.
func (r *TxResult) StatusString() string {
	if r == nil {
		return string(TxStatusUnknown)
	}
	if r.Reason != "" {
		return fmt.Sprintf("%s (%s)", r.Status, r.Reason)
	}

	return string(r.Status)
}

// AccountInfo is the balance and nonce of an account.
type AccountInfo struct {
	Address common.Address
	Free    *big.Int
	Nonce   uint64
}

// HasActivity reports whether the account ever held funds or sent a transaction.
func (a *AccountInfo) HasActivity() bool {
	return a.Nonce != 0 || (a.Free != nil && a.Free.Sign() != 0)
}

// Relationship is a DID verification relationship.
type Relationship uint8

// Relationship constants.
const (
	RelationshipAuthentication  Relationship = 0
	RelationshipAssertionMethod Relationship = 1
)

func (r Relationship) String() string {
	switch r {
	case RelationshipAuthentication:
		return "authentication"
	case RelationshipAssertionMethod:
		return "assertionMethod"
	default:
		return "unknown"
	}
}

// ParseRelationship converts a string to a Relationship.
func ParseRelationship(s string) (Relationship, error) {
	switch strings.ToLower(s) {
	case "authentication":
		return RelationshipAuthentication, nil
	case "assertionmethod", "assertion":
		return RelationshipAssertionMethod, nil
	default:
		return 0, fmt.Errorf("invalid relationship: %s", s)
	}
}

// DIDRecord is the chain state of a DID.
type DIDRecord struct {
	Address           common.Address
	AuthenticationKey []byte
	AssertionKey      []byte
	DocHash           common.Hash
	Nonce             uint64
}

// CTypeRecord is the chain state of a CType.
type CTypeRecord struct {
	Hash      common.Hash
	Creator   common.Address
	CreatedAt uint64
}

// Signature is an authorization signature split for contract calls.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// CreateDIDRequest anchors a new DID. The DID address is the address of
// AuthenticationKey, and DIDSigner must sign with that key.
type CreateDIDRequest struct {
	Submitter         signer.SignerProvider
	DIDSigner         signer.SignerProvider
	AuthenticationKey []byte
	DocHash           common.Hash
}

// SetVerificationMethodRequest sets the key of a verification relationship.
type SetVerificationMethodRequest struct {
	Submitter    signer.SignerProvider
	DIDSigner    signer.SignerProvider
	DID          common.Address
	Relationship Relationship
	Key          []byte
	DocHash      common.Hash
}

// NameRequest claims or releases a Web3 Name for a DID.
type NameRequest struct {
	Submitter signer.SignerProvider
	DIDSigner signer.SignerProvider
	DID       common.Address
	Name      string
}

// CTypeRequest anchors a CType hash, authorized by the DID's assertion key.
type CTypeRequest struct {
	Submitter signer.SignerProvider
	DIDSigner signer.SignerProvider
	DID       common.Address
	Hash      common.Hash
}

func validateSigners(submitter, didSigner signer.SignerProvider) error {
	if submitter == nil {
		return fmt.Errorf("submitter is required")
	}
	if didSigner == nil {
		return fmt.Errorf("DID signer is required")
	}

	return nil
}
