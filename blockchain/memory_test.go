package blockchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

type testKey struct {
	signer *signer.DefaultProvider
	pub    []byte
	addr   common.Address
}

func newTestKey(t *testing.T) *testKey {
	t.Helper()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := signer.NewProviderFromKey(priv)
	require.NoError(t, err)

	return &testKey{
		signer: s,
		pub:    crypto.CompressPubkey(&priv.PublicKey),
		addr:   crypto.PubkeyToAddress(priv.PublicKey),
	}
}

func fundedLedger(t *testing.T) (*MemoryLedger, *testKey) {
	t.Helper()

	submitter := newTestKey(t)
	ledger := NewMemoryLedger(WithFunds(submitter.addr, big.NewInt(1_000_000_000_000_000_000)))

	return ledger, submitter
}

func createDID(t *testing.T, ledger *MemoryLedger, submitter, auth *testKey) {
	t.Helper()

	res, err := ledger.CreateDID(context.Background(), &CreateDIDRequest{
		Submitter:         submitter.signer,
		DIDSigner:         auth.signer,
		AuthenticationKey: auth.pub,
		DocHash:           common.HexToHash("0x01"),
	})
	require.NoError(t, err)
	require.True(t, res.Confirmed(), res.StatusString())
}

func TestMemoryLedgerCreateDID(t *testing.T) {
	ctx := context.Background()
	ledger, submitter := fundedLedger(t)
	auth := newTestKey(t)

	createDID(t, ledger, submitter, auth)

	record, err := ledger.ResolveDID(ctx, auth.addr)
	require.NoError(t, err)
	assert.Equal(t, auth.pub, record.AuthenticationKey)
	assert.Empty(t, record.AssertionKey)
	assert.Equal(t, common.HexToHash("0x01"), record.DocHash)
	assert.Equal(t, uint64(1), record.Nonce)

	info, err := ledger.AccountInfo(ctx, submitter.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Nonce)
	assert.Equal(t, big.NewInt(999_000_000_000_000_000), info.Free)
	assert.Equal(t, uint64(1), ledger.BlockNumber())

	t.Run("duplicate fails", func(t *testing.T) {
		res, err := ledger.CreateDID(ctx, &CreateDIDRequest{
			Submitter: submitter.signer, DIDSigner: auth.signer, AuthenticationKey: auth.pub,
		})
		require.NoError(t, err)
		assert.Equal(t, TxStatusFailed, res.Status)
		assert.Equal(t, "DID already exists", res.Reason)
	})

	t.Run("foreign signer fails", func(t *testing.T) {
		other := newTestKey(t)
		victim := newTestKey(t)
		res, err := ledger.CreateDID(ctx, &CreateDIDRequest{
			Submitter: submitter.signer, DIDSigner: other.signer, AuthenticationKey: victim.pub,
		})
		require.NoError(t, err)
		assert.Equal(t, TxStatusFailed, res.Status)
		assert.Contains(t, res.Reason, "invalid DID authorization")

		_, err = ledger.ResolveDID(ctx, victim.addr)
		assert.ErrorIs(t, err, ErrDIDNotFound)
	})

	t.Run("missing signers", func(t *testing.T) {
		_, err := ledger.CreateDID(ctx, &CreateDIDRequest{DIDSigner: auth.signer, AuthenticationKey: auth.pub})
		assert.Error(t, err)
		_, err = ledger.CreateDID(ctx, &CreateDIDRequest{Submitter: submitter.signer, AuthenticationKey: auth.pub})
		assert.Error(t, err)
	})
}

func TestMemoryLedgerInsufficientFunds(t *testing.T) {
	ledger := NewMemoryLedger()
	submitter := newTestKey(t)
	auth := newTestKey(t)

	_, err := ledger.CreateDID(context.Background(), &CreateDIDRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, AuthenticationKey: auth.pub,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	ledger.Fund(submitter.addr, DefaultMemoryFee)
	createDID(t, ledger, submitter, auth)

	info, err := ledger.AccountInfo(context.Background(), submitter.addr)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Free.Sign())
	assert.True(t, info.HasActivity())
}

// impostor claims an address whose key it does not hold.
type impostor struct {
	signer.SignerProvider
	addr common.Address
}

func (i impostor) GetAddress() string {
	return i.addr.Hex()
}

func TestMemoryLedgerChecksSubmitterSignature(t *testing.T) {
	ledger, submitter := fundedLedger(t)
	auth := newTestKey(t)

	_, err := ledger.CreateDID(context.Background(), &CreateDIDRequest{
		Submitter:         impostor{SignerProvider: newTestKey(t).signer, addr: submitter.addr},
		DIDSigner:         auth.signer,
		AuthenticationKey: auth.pub,
	})
	assert.ErrorContains(t, err, "not submitter")

	info, err := ledger.AccountInfo(context.Background(), submitter.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Nonce)
}

func TestMemoryLedgerVerificationMethod(t *testing.T) {
	ctx := context.Background()
	ledger, submitter := fundedLedger(t)
	auth := newTestKey(t)
	assertion := newTestKey(t)
	createDID(t, ledger, submitter, auth)

	res, err := ledger.SetVerificationMethod(ctx, &SetVerificationMethodRequest{
		Submitter: submitter.signer, DIDSigner: assertion.signer, DID: auth.addr,
		Relationship: RelationshipAssertionMethod, Key: assertion.pub,
	})
	require.NoError(t, err)
	assert.Equal(t, TxStatusFailed, res.Status, "only the authentication key may set methods")

	res, err = ledger.SetVerificationMethod(ctx, &SetVerificationMethodRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, DID: auth.addr,
		Relationship: RelationshipAssertionMethod, Key: assertion.pub, DocHash: common.HexToHash("0x02"),
	})
	require.NoError(t, err)
	require.True(t, res.Confirmed(), res.StatusString())

	record, err := ledger.ResolveDID(ctx, auth.addr)
	require.NoError(t, err)
	assert.Equal(t, assertion.pub, record.AssertionKey)
	assert.Equal(t, common.HexToHash("0x02"), record.DocHash)
	assert.Equal(t, uint64(2), record.Nonce)

	_, err = ledger.SetVerificationMethod(ctx, &SetVerificationMethodRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, DID: newTestKey(t).addr,
		Relationship: RelationshipAssertionMethod, Key: assertion.pub,
	})
	assert.ErrorIs(t, err, ErrDIDNotFound)

	_, err = ledger.SetVerificationMethod(ctx, &SetVerificationMethodRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, DID: auth.addr,
		Relationship: Relationship(7), Key: assertion.pub,
	})
	assert.Error(t, err)
}

func TestMemoryLedgerNames(t *testing.T) {
	ctx := context.Background()
	ledger, submitter := fundedLedger(t)
	alice := newTestKey(t)
	bob := newTestKey(t)
	createDID(t, ledger, submitter, alice)
	createDID(t, ledger, submitter, bob)

	claim := func(who *testKey, name string) *TxResult {
		res, err := ledger.ClaimName(ctx, &NameRequest{Submitter: submitter.signer, DIDSigner: who.signer, DID: who.addr, Name: name})
		require.NoError(t, err)
		return res
	}

	require.True(t, claim(alice, "alice").Confirmed())

	name, err := ledger.NameOf(ctx, alice.addr)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	owner, err := ledger.OwnerOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.addr, owner)

	assert.Contains(t, claim(bob, "alice").Reason, "already claimed")
	assert.Contains(t, claim(alice, "alice2").Reason, "already owns")

	res, err := ledger.ClaimName(ctx, &NameRequest{Submitter: submitter.signer, DIDSigner: alice.signer, DID: bob.addr, Name: "bobby"})
	require.NoError(t, err)
	assert.Equal(t, TxStatusFailed, res.Status)

	res, err = ledger.ReleaseName(ctx, &NameRequest{Submitter: submitter.signer, DIDSigner: alice.signer, DID: alice.addr})
	require.NoError(t, err)
	require.True(t, res.Confirmed(), res.StatusString())

	name, err = ledger.NameOf(ctx, alice.addr)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.True(t, claim(bob, "alice").Confirmed())

	res, err = ledger.ReleaseName(ctx, &NameRequest{Submitter: submitter.signer, DIDSigner: alice.signer, DID: alice.addr})
	require.NoError(t, err)
	assert.Equal(t, "DID owns no name", res.Reason)
}

func TestMemoryLedgerCTypes(t *testing.T) {
	ctx := context.Background()
	ledger, submitter := fundedLedger(t)
	auth := newTestKey(t)
	assertion := newTestKey(t)
	createDID(t, ledger, submitter, auth)

	hash := crypto.Keccak256Hash([]byte("ctype"))
	req := &CTypeRequest{Submitter: submitter.signer, DIDSigner: assertion.signer, DID: auth.addr, Hash: hash}

	res, err := ledger.RegisterCType(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, res.Reason, "no assertionMethod key")

	_, err = ledger.SetVerificationMethod(ctx, &SetVerificationMethodRequest{
		Submitter: submitter.signer, DIDSigner: auth.signer, DID: auth.addr,
		Relationship: RelationshipAssertionMethod, Key: assertion.pub,
	})
	require.NoError(t, err)

	res, err = ledger.RegisterCType(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Confirmed(), res.StatusString())

	record, err := ledger.CType(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, auth.addr, record.Creator)
	assert.Equal(t, res.BlockNumber, record.CreatedAt)

	res, err = ledger.RegisterCType(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "CType already registered", res.Reason)

	_, err = ledger.CType(ctx, common.HexToHash("0xdead"))
	assert.ErrorIs(t, err, ErrCTypeNotFound)

	seeded := NewMemoryLedger(WithCType(hash, auth.addr))
	_, err = seeded.CType(ctx, hash)
	assert.NoError(t, err)
}
