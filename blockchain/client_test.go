package blockchain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves canned contract call results and records sent
// transactions. Methods the client does not use are left to the embedded nil
// interface.
type fakeBackend struct {
	Backend

	nonce   uint64
	results map[string][]byte
	sent    []*types.Transaction
	status  uint64
	pending int
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	out, ok := f.results[hex.EncodeToString(msg.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.pending > 0 {
		f.pending--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status, BlockNumber: big.NewInt(42)}, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(7), nil
}

func (f *fakeBackend) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) Close() {}

func (f *fakeBackend) setResult(t *testing.T, contractABI abi.ABI, method string, values ...interface{}) {
	t.Helper()

	m, ok := contractABI.Methods[method]
	require.True(t, ok, method)
	out, err := m.Outputs.Pack(values...)
	require.NoError(t, err)

	if f.results == nil {
		f.results = make(map[string][]byte)
	}
	f.results[hex.EncodeToString(m.ID)] = out
}

func testClientConfig() ClientConfig {
	return ClientConfig{
		ChainID:       704,
		DIDRegistry:   MemoryContracts.DIDRegistry.Hex(),
		NameRegistry:  MemoryContracts.NameRegistry.Hex(),
		CTypeRegistry: MemoryContracts.CTypeRegistry.Hex(),
		GasLimit:      300000,
		GasPrice:      big.NewInt(1),
		PollInterval:  1,
	}
}

func TestClientConfigValidate(t *testing.T) {
	cfg := testClientConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.ChainID = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.NameRegistry = "not-an-address"
	assert.ErrorContains(t, bad.Validate(), "name registry")

	_, err := NewClient(nil, cfg)
	assert.Error(t, err)
}

func TestClientCreateDIDNoSend(t *testing.T) {
	submitter := newTestKey(t)
	auth := newTestKey(t)

	cfg := testClientConfig()
	cfg.NoSend = true
	backend := &fakeBackend{nonce: 9}
	client, err := NewClient(backend, cfg)
	require.NoError(t, err)

	docHash := common.HexToHash("0xabcd")
	res, err := client.CreateDID(context.Background(), &CreateDIDRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, AuthenticationKey: auth.pub, DocHash: docHash,
	})
	require.NoError(t, err)
	assert.Equal(t, TxStatusSigned, res.Status)
	assert.Empty(t, backend.sent)

	tx, err := TxFromHex(res.RawTx)
	require.NoError(t, err)
	assert.Equal(t, res.TxHash, tx.Hash().Hex())
	assert.Equal(t, uint64(9), tx.Nonce())
	assert.Equal(t, MemoryContracts.DIDRegistry, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(704)), tx)
	require.NoError(t, err)
	assert.Equal(t, submitter.addr, from)

	didABI, err := DIDRegistryABI()
	require.NoError(t, err)
	method, err := didABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "createDID", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 6)
	assert.Equal(t, auth.addr, args[0])
	assert.Equal(t, auth.pub, args[1])

	sig := &Signature{V: args[3].(uint8), R: args[4].([32]byte), S: args[5].([32]byte)}
	payload, err := AuthorizationPayload(MemoryContracts.DIDRegistry, ActionCreateDID, auth.addr, submitter.addr, CreateDIDArgsHash(auth.pub, docHash), 0)
	require.NoError(t, err)
	recovered, err := RecoverAuthorizer(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, auth.addr, recovered)
}

func TestClientBuildRawTx(t *testing.T) {
	submitter := newTestKey(t)
	auth := newTestKey(t)

	backend := &fakeBackend{nonce: 4}
	client, err := NewClient(backend, testClientConfig())
	require.NoError(t, err)

	res, err := client.BuildRawTx(context.Background(), MemoryContracts.NameRegistry, submitter.signer, "release",
		auth.addr, uint8(27), [32]byte{1}, [32]byte{2})
	require.NoError(t, err)
	assert.Equal(t, TxStatusSigned, res.Status)
	assert.Empty(t, backend.sent)

	tx, err := TxFromHex("0x" + res.RawTx)
	require.NoError(t, err)
	assert.Equal(t, res.TxHash, tx.Hash().Hex())
	assert.Equal(t, uint64(4), tx.Nonce())
	assert.Equal(t, MemoryContracts.NameRegistry, *tx.To())

	method, err := MethodName(tx.Data())
	require.NoError(t, err)
	assert.Equal(t, "release", method)

	_, err = client.BuildRawTx(context.Background(), common.HexToAddress("0x01"), submitter.signer, "release")
	assert.ErrorContains(t, err, "is not a registry contract")
}

func TestMethodName(t *testing.T) {
	for _, load := range []func() (abi.ABI, error){DIDRegistryABI, NameRegistryABI, CTypeRegistryABI} {
		parsed, err := load()
		require.NoError(t, err)
		for name, m := range parsed.Methods {
			got, err := MethodName(m.ID)
			require.NoError(t, err)
			assert.Equal(t, name, got)
		}
	}

	_, err := MethodName([]byte{1, 2})
	assert.Error(t, err)
	_, err = MethodName([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.ErrorContains(t, err, "unknown registry method")
}

func TestClientCreateDIDRejectsForeignSigner(t *testing.T) {
	client, err := NewClient(&fakeBackend{}, testClientConfig())
	require.NoError(t, err)

	_, err = client.CreateDID(context.Background(), &CreateDIDRequest{
		Submitter: newTestKey(t).signer, DIDSigner: newTestKey(t).signer, AuthenticationKey: newTestKey(t).pub,
	})
	assert.ErrorContains(t, err, "does not hold the authentication key")
}

func TestClientClaimNameWaitsForReceipt(t *testing.T) {
	submitter := newTestKey(t)
	auth := newTestKey(t)

	didABI, err := DIDRegistryABI()
	require.NoError(t, err)

	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, pending: 2}
	backend.setResult(t, didABI, "resolveDID", true, auth.pub, []byte{}, [32]byte{}, uint64(3))

	client, err := NewClient(backend, testClientConfig())
	require.NoError(t, err)

	res, err := client.ClaimName(context.Background(), &NameRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, DID: auth.addr, Name: "alice",
	})
	require.NoError(t, err)
	assert.True(t, res.Confirmed())
	assert.Equal(t, uint64(42), res.BlockNumber)
	require.Len(t, backend.sent, 1)

	backend.status = types.ReceiptStatusFailed
	res, err = client.ClaimName(context.Background(), &NameRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, DID: auth.addr, Name: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, TxStatusFailed, res.Status)
}

func TestClientReads(t *testing.T) {
	ctx := context.Background()
	auth := newTestKey(t)
	assertion := newTestKey(t)

	didABI, err := DIDRegistryABI()
	require.NoError(t, err)
	nameABI, err := NameRegistryABI()
	require.NoError(t, err)
	ctypeABI, err := CTypeRegistryABI()
	require.NoError(t, err)

	backend := &fakeBackend{nonce: 4}
	backend.setResult(t, didABI, "resolveDID", true, auth.pub, assertion.pub, [32]byte{1}, uint64(5))
	backend.setResult(t, nameABI, "nameOf", "alice")
	backend.setResult(t, nameABI, "ownerOf", auth.addr)
	backend.setResult(t, ctypeABI, "ctypeOf", common.Address{}, uint64(0))

	client, err := NewClient(backend, testClientConfig())
	require.NoError(t, err)

	record, err := client.ResolveDID(ctx, auth.addr)
	require.NoError(t, err)
	assert.Equal(t, auth.pub, record.AuthenticationKey)
	assert.Equal(t, assertion.pub, record.AssertionKey)
	assert.Equal(t, common.Hash{1}, record.DocHash)
	assert.Equal(t, uint64(5), record.Nonce)

	name, err := client.NameOf(ctx, auth.addr)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	owner, err := client.OwnerOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, auth.addr, owner)

	_, err = client.CType(ctx, common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrCTypeNotFound)

	info, err := client.AccountInfo(ctx, auth.addr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), info.Free)
	assert.Equal(t, uint64(4), info.Nonce)

	backend.setResult(t, didABI, "resolveDID", false, []byte{}, []byte{}, [32]byte{}, uint64(0))
	_, err = client.ResolveDID(ctx, auth.addr)
	assert.ErrorIs(t, err, ErrDIDNotFound)
}
