package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

// DefaultPollInterval is the receipt polling interval.
const DefaultPollInterval = 2 * time.Second

// Backend is the RPC surface the Client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	Close()
}

// ClientConfig holds configuration for the registry client.
type ClientConfig struct {
	RPCURL        string
	ChainID       int64
	DIDRegistry   string
	NameRegistry  string
	CTypeRegistry string
	// GasLimit of 0 estimates gas per transaction.
	GasLimit uint64
	// GasPrice of nil uses the network's fee suggestion.
	GasPrice     *big.Int
	PollInterval time.Duration
	// NoSend signs transactions and returns them raw instead of submitting.
	NoSend bool
}

// Validate checks that the client can be built from the config.
func (c *ClientConfig) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}

	for name, addr := range map[string]string{
		"DID registry":   c.DIDRegistry,
		"name registry":  c.NameRegistry,
		"CType registry": c.CTypeRegistry,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address: %q", name, addr)
		}
	}

	return nil
}

// Client implements Registry against the registry contracts over JSON-RPC.
type Client struct {
	backend   Backend
	cfg       ClientConfig
	chainID   *big.Int
	contracts Contracts

	didRegistry   *bind.BoundContract
	nameRegistry  *bind.BoundContract
	ctypeRegistry *bind.BoundContract
}

// Dial connects to cfg.RPCURL and returns a Client. HTTP endpoints use an
// instrumented transport.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}

	return NewClient(ethclient.NewClient(rpcClient), cfg)
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, cfg ClientConfig) (*Client, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	didABI, err := DIDRegistryABI()
	if err != nil {
		return nil, err
	}
	nameABI, err := NameRegistryABI()
	if err != nil {
		return nil, err
	}
	ctypeABI, err := CTypeRegistryABI()
	if err != nil {
		return nil, err
	}

	contracts := Contracts{
		DIDRegistry:   common.HexToAddress(cfg.DIDRegistry),
		NameRegistry:  common.HexToAddress(cfg.NameRegistry),
		CTypeRegistry: common.HexToAddress(cfg.CTypeRegistry),
	}

	return &Client{
		backend:       backend,
		cfg:           cfg,
		chainID:       big.NewInt(cfg.ChainID),
		contracts:     contracts,
		didRegistry:   bind.NewBoundContract(contracts.DIDRegistry, didABI, backend, backend, backend),
		nameRegistry:  bind.NewBoundContract(contracts.NameRegistry, nameABI, backend, backend, backend),
		ctypeRegistry: bind.NewBoundContract(contracts.CTypeRegistry, ctypeABI, backend, backend, backend),
	}, nil
}

// Contracts returns the registry addresses.
func (c *Client) Contracts() Contracts {
	return c.contracts
}

// Close disconnects from the node.
func (c *Client) Close() {
	c.backend.Close()
}

// AccountInfo returns the balance and nonce of addr at the latest block.
func (c *Client) AccountInfo(ctx context.Context, addr common.Address) (*AccountInfo, error) {
	balance, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	nonce, err := c.backend.NonceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	return &AccountInfo{Address: addr, Free: balance, Nonce: nonce}, nil
}

// CreateDID anchors a DID controlled by req.AuthenticationKey.
func (c *Client) CreateDID(ctx context.Context, req *CreateDIDRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	did, err := AddressFromKey(req.AuthenticationKey)
	if err != nil {
		return nil, fmt.Errorf("invalid authentication key: %w", err)
	}
	if !strings.EqualFold(did.Hex(), req.DIDSigner.GetAddress()) {
		return nil, fmt.Errorf("DID signer %s does not hold the authentication key", req.DIDSigner.GetAddress())
	}

	sig, err := c.authorize(c.contracts.DIDRegistry, ActionCreateDID, did, req.Submitter, CreateDIDArgsHash(req.AuthenticationKey, req.DocHash), 0, req.DIDSigner)
	if err != nil {
		return nil, err
	}

	return c.transact(ctx, c.contracts.DIDRegistry, req.Submitter, "createDID",
		did, req.AuthenticationKey, [32]byte(req.DocHash), sig.V, sig.R, sig.S)
}

// SetVerificationMethod sets the key of a DID verification relationship.
func (c *Client) SetVerificationMethod(ctx context.Context, req *SetVerificationMethodRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := c.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	argsHash := SetVerificationMethodArgsHash(req.Relationship, req.Key, req.DocHash)
	sig, err := c.authorize(c.contracts.DIDRegistry, ActionSetVerificationMethod, req.DID, req.Submitter, argsHash, record.Nonce, req.DIDSigner)
	if err != nil {
		return nil, err
	}

	return c.transact(ctx, c.contracts.DIDRegistry, req.Submitter, "setVerificationMethod",
		req.DID, uint8(req.Relationship), req.Key, [32]byte(req.DocHash), sig.V, sig.R, sig.S)
}

// ResolveDID reads the DID record, returning ErrDIDNotFound when absent.
func (c *Client) ResolveDID(ctx context.Context, did common.Address) (*DIDRecord, error) {
	var out []interface{}
	if err := c.didRegistry.Call(&bind.CallOpts{Context: ctx}, &out, "resolveDID", did); err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("unexpected resolveDID output length %d", len(out))
	}

	exists, ok := out[0].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected output type: %T", out[0])
	}
	if !exists {
		return nil, ErrDIDNotFound
	}

	authKey, ok1 := out[1].([]byte)
	assertionKey, ok2 := out[2].([]byte)
	docHash, ok3 := out[3].([32]byte)
	nonce, ok4 := out[4].(uint64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("unexpected resolveDID output types")
	}

	return &DIDRecord{
		Address:           did,
		AuthenticationKey: authKey,
		AssertionKey:      assertionKey,
		DocHash:           common.Hash(docHash),
		Nonce:             nonce,
	}, nil
}

// ClaimName links req.Name to req.DID.
func (c *Client) ClaimName(ctx context.Context, req *NameRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := c.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	sig, err := c.authorize(c.contracts.NameRegistry, ActionClaimName, req.DID, req.Submitter, NameArgsHash(req.Name), record.Nonce, req.DIDSigner)
	if err != nil {
		return nil, err
	}

	return c.transact(ctx, c.contracts.NameRegistry, req.Submitter, "claim", req.DID, req.Name, sig.V, sig.R, sig.S)
}

// ReleaseName unlinks the name of req.DID.
func (c *Client) ReleaseName(ctx context.Context, req *NameRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := c.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	sig, err := c.authorize(c.contracts.NameRegistry, ActionReleaseName, req.DID, req.Submitter, NameArgsHash(""), record.Nonce, req.DIDSigner)
	if err != nil {
		return nil, err
	}

	return c.transact(ctx, c.contracts.NameRegistry, req.Submitter, "release", req.DID, sig.V, sig.R, sig.S)
}

// NameOf returns the Web3 Name linked to did, or "" when there is none.
func (c *Client) NameOf(ctx context.Context, did common.Address) (string, error) {
	var out []interface{}
	if err := c.nameRegistry.Call(&bind.CallOpts{Context: ctx}, &out, "nameOf", did); err != nil {
		return "", fmt.Errorf("contract call failed: %w", err)
	}
	if len(out) == 0 {
		return "", errors.New("contract returned no data")
	}

	name, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected output type: %T", out[0])
	}

	return name, nil
}

// OwnerOf returns the DID address owning name, or the zero address.
func (c *Client) OwnerOf(ctx context.Context, name string) (common.Address, error) {
	var out []interface{}
	if err := c.nameRegistry.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", name); err != nil {
		return common.Address{}, fmt.Errorf("contract call failed: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, errors.New("contract returned no data")
	}

	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected output type: %T", out[0])
	}

	return owner, nil
}

// RegisterCType anchors a CType hash under the DID in req.
func (c *Client) RegisterCType(ctx context.Context, req *CTypeRequest) (*TxResult, error) {
	if err := validateSigners(req.Submitter, req.DIDSigner); err != nil {
		return nil, err
	}

	record, err := c.ResolveDID(ctx, req.DID)
	if err != nil {
		return nil, err
	}

	sig, err := c.authorize(c.contracts.CTypeRegistry, ActionAddCType, req.DID, req.Submitter, req.Hash, record.Nonce, req.DIDSigner)
	if err != nil {
		return nil, err
	}

	return c.transact(ctx, c.contracts.CTypeRegistry, req.Submitter, "register", req.DID, [32]byte(req.Hash), sig.V, sig.R, sig.S)
}

// CType reads a CType record, returning ErrCTypeNotFound when absent.
func (c *Client) CType(ctx context.Context, hash common.Hash) (*CTypeRecord, error) {
	var out []interface{}
	if err := c.ctypeRegistry.Call(&bind.CallOpts{Context: ctx}, &out, "ctypeOf", [32]byte(hash)); err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("unexpected ctypeOf output length %d", len(out))
	}

	creator, ok1 := out[0].(common.Address)
	createdAt, ok2 := out[1].(uint64)
	if !ok1 || !ok2 {
		return nil, errors.New("unexpected ctypeOf output types")
	}
	if creator == (common.Address{}) {
		return nil, ErrCTypeNotFound
	}

	return &CTypeRecord{Hash: hash, Creator: creator, CreatedAt: createdAt}, nil
}

func (c *Client) authorize(contract common.Address, action Action, did common.Address, submitter signer.SignerProvider, argsHash common.Hash, nonce uint64, didSigner signer.SignerProvider) (*Signature, error) {
	payload, err := AuthorizationPayload(contract, action, did, common.HexToAddress(submitter.GetAddress()), argsHash, nonce)
	if err != nil {
		return nil, err
	}

	return SignAuthorization(didSigner, payload)
}

// transact signs a contract call with the submitter key, sends it and waits
// for the receipt. With NoSend the signed transaction is returned raw.
func (c *Client) transact(ctx context.Context, contract common.Address, submitter signer.SignerProvider, method string, args ...interface{}) (*TxResult, error) {
	if c.cfg.NoSend {
		return c.BuildRawTx(ctx, contract, submitter, method, args...)
	}

	bound, err := c.bound(contract)
	if err != nil {
		return nil, err
	}

	tx, err := c.signTx(ctx, bound, submitter, false, method, args...)
	if err != nil {
		return nil, err
	}

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return &TxResult{Status: TxStatusUnknown, TxHash: tx.Hash().Hex()}, fmt.Errorf("failed to wait for %s: %w", method, err)
	}

	result := &TxResult{
		Status:      TxStatusConfirmed,
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		result.Status = TxStatusFailed
		result.Reason = "execution reverted"
	}

	return result, nil
}

// BuildRawTx signs a call of method on the registry at contract without
// sending it. The result carries the RLP hex and hash for offline
// submission.
func (c *Client) BuildRawTx(ctx context.Context, contract common.Address, submitter signer.SignerProvider, method string, args ...interface{}) (*TxResult, error) {
	bound, err := c.bound(contract)
	if err != nil {
		return nil, err
	}

	tx, err := c.signTx(ctx, bound, submitter, true, method, args...)
	if err != nil {
		return nil, err
	}

	return serializeTx(tx)
}

func (c *Client) bound(contract common.Address) (*bind.BoundContract, error) {
	switch contract {
	case c.contracts.DIDRegistry:
		return c.didRegistry, nil
	case c.contracts.NameRegistry:
		return c.nameRegistry, nil
	case c.contracts.CTypeRegistry:
		return c.ctypeRegistry, nil
	default:
		return nil, fmt.Errorf("%s is not a registry contract", contract.Hex())
	}
}

func (c *Client) signTx(ctx context.Context, contract *bind.BoundContract, submitter signer.SignerProvider, noSend bool, method string, args ...interface{}) (*types.Transaction, error) {
	from := common.HexToAddress(submitter.GetAddress())

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	opts := c.transactOpts(ctx, submitter, nonce)
	opts.NoSend = noSend

	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s transaction: %w", method, err)
	}

	return tx, nil
}

// transactOpts creates transaction authorization options signed by provider.
func (c *Client) transactOpts(ctx context.Context, provider signer.SignerProvider, nonce uint64) *bind.TransactOpts {
	txSigner := types.LatestSignerForChainID(c.chainID)
	signerFn := func(_ common.Address, tx *types.Transaction) (*types.Transaction, error) {
		sig, err := provider.Sign(txSigner.Hash(tx).Bytes())
		if err != nil {
			return nil, err
		}
		return tx.WithSignature(txSigner, sig)
	}

	return &bind.TransactOpts{
		From:     common.HexToAddress(provider.GetAddress()),
		Nonce:    new(big.Int).SetUint64(nonce),
		Value:    big.NewInt(0),
		GasLimit: c.cfg.GasLimit,
		GasPrice: c.cfg.GasPrice,
		Context:  ctx,
		Signer:   signerFn,
	}
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Registry = (*Client)(nil)
