package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

// DefaultMemoryFee is the fee MemoryLedger charges per transaction.
var DefaultMemoryFee = big.NewInt(1_000_000_000_000_000)

// MemoryContracts are the registry addresses MemoryLedger signs against.
var MemoryContracts = Contracts{
	DIDRegistry:   common.HexToAddress("0x0000000000000000000000000000000000018888"),
	NameRegistry:  common.HexToAddress("0x0000000000000000000000000000000000018889"),
	CTypeRegistry: common.HexToAddress("0x000000000000000000000000000000000001888a"),
}

type memoryDID struct {
	authKey      []byte
	assertionKey []byte
	docHash      common.Hash
	nonce        uint64
}

// MemoryLedger is an in-process Registry. It keeps balances and registry
// state in memory and checks DID authorizations the way the contracts do.
type MemoryLedger struct {
	mu        sync.Mutex
	fee       *big.Int
	block     uint64
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	dids      map[common.Address]*memoryDID
	names     map[string]common.Address
	nameOf    map[common.Address]string
	ctypes    map[common.Hash]*CTypeRecord
	contracts Contracts
}

// MemoryOption configures a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithFee sets the per-transaction fee.
func WithFee(fee *big.Int) MemoryOption {
	return func(m *MemoryLedger) { m.fee = new(big.Int).Set(fee) }
}

// WithFunds credits an account at genesis.
func WithFunds(addr common.Address, amount *big.Int) MemoryOption {
	return func(m *MemoryLedger) { m.balances[addr] = new(big.Int).Set(amount) }
}

// WithCType anchors a CType at genesis.
func WithCType(hash common.Hash, creator common.Address) MemoryOption {
	return func(m *MemoryLedger) {
		m.ctypes[hash] = &CTypeRecord{Hash: hash, Creator: creator}
	}
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	m := &MemoryLedger{
		fee:       new(big.Int).Set(DefaultMemoryFee),
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]uint64),
		dids:      make(map[common.Address]*memoryDID),
		names:     make(map[string]common.Address),
		nameOf:    make(map[common.Address]string),
		ctypes:    make(map[common.Hash]*CTypeRecord),
		contracts: MemoryContracts,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Fund credits amount to addr.
func (m *MemoryLedger) Fund(addr common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balance(addr).Add(m.balance(addr), amount)
}

// Contracts returns the registry addresses used in authorization payloads.
func (m *MemoryLedger) Contracts() Contracts {
	return m.contracts
}

// BlockNumber returns the number of the last block.
func (m *MemoryLedger) BlockNumber() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.block
}

// Close is a no-op.
func (m *MemoryLedger) Close() {}

// AccountInfo returns the balance and nonce of addr.
func (m *MemoryLedger) AccountInfo(_ context.Context, addr common.Address) (*AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &AccountInfo{
		Address: addr,
		Free:    new(big.Int).Set(m.balance(addr)),
		Nonce:   m.nonces[addr],
	}, nil
}

// CreateDID anchors a DID controlled by req.AuthenticationKey.
func (m *MemoryLedger) CreateDID(_ context.Context, req *CreateDIDRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	did, err := AddressFromKey(req.AuthenticationKey)
	if err != nil {
		return nil, fmt.Errorf("invalid authentication key: %w", err)
	}

	submitter := common.HexToAddress(req.Submitter.GetAddress())
	sig, err := m.sign(m.contracts.DIDRegistry, ActionCreateDID, did, submitter, CreateDIDArgsHash(req.AuthenticationKey, req.DocHash), 0, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(req.Submitter, func() error {
		if _, ok := m.dids[did]; ok {
			return fmt.Errorf("DID already exists")
		}
		if err := m.checkAuthorization(m.contracts.DIDRegistry, ActionCreateDID, did, submitter, CreateDIDArgsHash(req.AuthenticationKey, req.DocHash), 0, sig, did); err != nil {
			return err
		}

		m.dids[did] = &memoryDID{
			authKey: append([]byte(nil), req.AuthenticationKey...),
			docHash: req.DocHash,
			nonce:   1,
		}
		return nil
	})
}

// SetVerificationMethod sets the key of a DID verification relationship.
func (m *MemoryLedger) SetVerificationMethod(ctx context.Context, req *SetVerificationMethodRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}
	if req.Relationship != RelationshipAuthentication && req.Relationship != RelationshipAssertionMethod {
		return nil, fmt.Errorf("invalid relationship %d", req.Relationship)
	}
	if _, err := AddressFromKey(req.Key); err != nil {
		return nil, fmt.Errorf("invalid verification key: %w", err)
	}

	record, err := m.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	submitter := common.HexToAddress(req.Submitter.GetAddress())
	argsHash := SetVerificationMethodArgsHash(req.Relationship, req.Key, req.DocHash)
	sig, err := m.sign(m.contracts.DIDRegistry, ActionSetVerificationMethod, req.DID, submitter, argsHash, record.Nonce, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(req.Submitter, func() error {
		d, err := m.authorizeDID(m.contracts.DIDRegistry, ActionSetVerificationMethod, req.DID, submitter, argsHash, sig, RelationshipAuthentication)
		if err != nil {
			return err
		}

		key := append([]byte(nil), req.Key...)
		if req.Relationship == RelationshipAuthentication {
			d.authKey = key
		} else {
			d.assertionKey = key
		}
		d.docHash = req.DocHash
		d.nonce++
		return nil
	})
}

// ResolveDID returns the DID record, or ErrDIDNotFound.
func (m *MemoryLedger) ResolveDID(_ context.Context, did common.Address) (*DIDRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.dids[did]
	if !ok {
		return nil, ErrDIDNotFound
	}

	return &DIDRecord{
		Address:           did,
		AuthenticationKey: append([]byte(nil), d.authKey...),
		AssertionKey:      append([]byte(nil), d.assertionKey...),
		DocHash:           d.docHash,
		Nonce:             d.nonce,
	}, nil
}

// ClaimName links req.Name to req.DID.
func (m *MemoryLedger) ClaimName(ctx context.Context, req *NameRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := m.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	submitter := common.HexToAddress(req.Submitter.GetAddress())
	sig, err := m.sign(m.contracts.NameRegistry, ActionClaimName, req.DID, submitter, NameArgsHash(req.Name), record.Nonce, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(req.Submitter, func() error {
		d, err := m.authorizeDID(m.contracts.NameRegistry, ActionClaimName, req.DID, submitter, NameArgsHash(req.Name), sig, RelationshipAuthentication)
		if err != nil {
			return err
		}
		if req.Name == "" {
			return fmt.Errorf("name is empty")
		}
		if owner, ok := m.names[req.Name]; ok {
			return fmt.Errorf("name already claimed by %s", strings.ToLower(owner.Hex()))
		}
		if existing, ok := m.nameOf[req.DID]; ok {
			return fmt.Errorf("DID already owns name %s", existing)
		}

		m.names[req.Name] = req.DID
		m.nameOf[req.DID] = req.Name
		d.nonce++
		return nil
	})
}

// ReleaseName unlinks the name of req.DID.
func (m *MemoryLedger) ReleaseName(ctx context.Context, req *NameRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := m.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	submitter := common.HexToAddress(req.Submitter.GetAddress())
	sig, err := m.sign(m.contracts.NameRegistry, ActionReleaseName, req.DID, submitter, NameArgsHash(""), record.Nonce, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(req.Submitter, func() error {
		d, err := m.authorizeDID(m.contracts.NameRegistry, ActionReleaseName, req.DID, submitter, NameArgsHash(""), sig, RelationshipAuthentication)
		if err != nil {
			return err
		}

		name, ok := m.nameOf[req.DID]
		if !ok {
			return fmt.Errorf("DID owns no name")
		}

		delete(m.names, name)
		delete(m.nameOf, req.DID)
		d.nonce++
		return nil
	})
}

// NameOf returns the name linked to did, or "".
func (m *MemoryLedger) NameOf(_ context.Context, did common.Address) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.nameOf[did], nil
}

// OwnerOf returns the DID owning name, or the zero address.
func (m *MemoryLedger) OwnerOf(_ context.Context, name string) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.names[name], nil
}

// RegisterCType anchors a CType hash, authorized by the DID's assertion key.
func (m *MemoryLedger) RegisterCType(ctx context.Context, req *CTypeRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := m.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	submitter := common.HexToAddress(req.Submitter.GetAddress())
	sig, err := m.sign(m.contracts.CTypeRegistry, ActionAddCType, req.DID, submitter, req.Hash, record.Nonce, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(req.Submitter, func() error {
		d, err := m.authorizeDID(m.contracts.CTypeRegistry, ActionAddCType, req.DID, submitter, req.Hash, sig, RelationshipAssertionMethod)
		if err != nil {
			return err
		}
		if _, ok := m.ctypes[req.Hash]; ok {
			return fmt.Errorf("CType already registered")
		}

		m.ctypes[req.Hash] = &CTypeRecord{Hash: req.Hash, Creator: req.DID, CreatedAt: m.block}
		d.nonce++
		return nil
	})
}

// CType returns the CType record, or ErrCTypeNotFound.
func (m *MemoryLedger) CType(_ context.Context, hash common.Hash) (*CTypeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.ctypes[hash]
	if !ok {
		return nil, ErrCTypeNotFound
	}
	out := *rec

	return &out, nil
}

type didSigned interface {
	didSigner() signer.SignerProvider
}

func (r *CreateDIDRequest) didSigner() signer.SignerProvider             { return r.DIDSigner }
func (r *SetVerificationMethodRequest) didSigner() signer.SignerProvider { return r.DIDSigner }
func (r *NameRequest) didSigner() signer.SignerProvider                  { return r.DIDSigner }
func (r *CTypeRequest) didSigner() signer.SignerProvider                 { return r.DIDSigner }

// sign produces the DID authorization outside the ledger lock, since remote
// signers may block.
func (m *MemoryLedger) sign(contract common.Address, action Action, did, submitter common.Address, argsHash common.Hash, nonce uint64, req didSigned) (*Signature, error) {
	payload, err := AuthorizationPayload(contract, action, did, submitter, argsHash, nonce)
	if err != nil {
		return nil, err
	}

	return SignAuthorization(req.didSigner(), payload)
}

// apply has the submitter sign the transaction, charges the fee, runs fn
// and records the outcome in a new block. A rule violation in fn yields a
// failed result, not an error. Callers hold m.mu.
func (m *MemoryLedger) apply(submitter signer.SignerProvider, fn func() error) (*TxResult, error) {
	from := common.HexToAddress(submitter.GetAddress())

	balance := m.balance(from)
	if balance.Cmp(m.fee) < 0 {
		return nil, fmt.Errorf("%w: %s has %s", ErrInsufficientFunds, strings.ToLower(from.Hex()), balance)
	}

	nonce := m.nonces[from]
	preimage := append(from.Bytes(), new(big.Int).SetUint64(nonce).Bytes()...)
	preimage = append(preimage, new(big.Int).SetUint64(m.block+1).Bytes()...)

	sig, err := SignAuthorization(submitter, preimage)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	signedBy, err := RecoverAuthorizer(preimage, sig)
	if err != nil {
		return nil, err
	}
	if signedBy != from {
		return nil, fmt.Errorf("transaction signed by %s, not submitter %s", strings.ToLower(signedBy.Hex()), strings.ToLower(from.Hex()))
	}

	balance.Sub(balance, m.fee)
	m.nonces[from] = nonce + 1
	m.block++

	hash := crypto.Keccak256Hash(preimage)
	result := &TxResult{Status: TxStatusConfirmed, TxHash: hash.Hex(), BlockNumber: m.block}

	if err := fn(); err != nil {
		result.Status = TxStatusFailed
		result.Reason = err.Error()
	}

	return result, nil
}

// authorizeDID checks that sig was made by the DID's key for rel over the
// current nonce. Callers hold m.mu.
func (m *MemoryLedger) authorizeDID(contract common.Address, action Action, did, submitter common.Address, argsHash common.Hash, sig *Signature, rel Relationship) (*memoryDID, error) {
	d, ok := m.dids[did]
	if !ok {
		return nil, ErrDIDNotFound
	}

	key := d.authKey
	if rel == RelationshipAssertionMethod {
		key = d.assertionKey
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("DID has no %s key", rel)
	}

	expected, err := AddressFromKey(key)
	if err != nil {
		return nil, err
	}
	if err := m.checkAuthorization(contract, action, did, submitter, argsHash, d.nonce, sig, expected); err != nil {
		return nil, err
	}

	return d, nil
}

func (m *MemoryLedger) checkAuthorization(contract common.Address, action Action, did, submitter common.Address, argsHash common.Hash, nonce uint64, sig *Signature, expected common.Address) error {
	payload, err := AuthorizationPayload(contract, action, did, submitter, argsHash, nonce)
	if err != nil {
		return err
	}

	recovered, err := RecoverAuthorizer(payload, sig)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("invalid DID authorization: signed by %s", strings.ToLower(recovered.Hex()))
	}

	return nil
}

func (m *MemoryLedger) balance(addr common.Address) *big.Int {
	b, ok := m.balances[addr]
	if !ok {
		b = new(big.Int)
		m.balances[addr] = b
	}

	return b
}

var _ Registry = (*MemoryLedger)(nil)
