package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/config"
	"github.com/pilacorp/go-w3n-wallet/credential"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/signer"
	"github.com/pilacorp/go-w3n-wallet/store"
	"github.com/pilacorp/go-w3n-wallet/w3n"
)

const (
	testMnemonic    = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testAddress     = "0x9858effd232b4033e47d90003d41ec34ecaeda94"
	testDIDURI      = "did:kilt:0xd7de6918b9f1363f5bd057c11fc34549d14fa4ea"
	issuerMnemonic  = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	submitterTokens = 10
)

var fixedTime = time.Date(2025, 8, 5, 10, 0, 0, 123_000_000, time.UTC)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type offlineLoader struct{}

func (offlineLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return nil, errors.New("offline: " + u)
}

// testLoader serves the preloaded VC context and refuses anything else.
func testLoader(t *testing.T) ld.DocumentLoader {
	t.Helper()

	remote, err := credential.DefaultDocumentLoader().LoadDocument(credential.VCContextV1)
	require.NoError(t, err)

	loader := ld.NewCachingDocumentLoader(offlineLoader{})
	loader.AddDocument(credential.VCContextV1, remote.Document)

	return loader
}

type fixture struct {
	ledger    *blockchain.MemoryLedger
	submitter signer.SignerProvider
	session   *Session
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	kp, err := account.GenerateKeyPair()
	require.NoError(t, err)
	submitter, err := kp.Signer()
	require.NoError(t, err)

	addr := common.HexToAddress(submitter.GetAddress())
	funds := new(big.Int).Mul(big.NewInt(submitterTokens), big.NewInt(1_000_000_000_000_000_000))
	ledger := blockchain.NewMemoryLedger(
		blockchain.WithFunds(addr, funds),
		blockchain.WithCType(common.HexToHash(credential.DefaultCTypeHash), addr),
	)

	core, logs := observer.New(zap.InfoLevel)
	opts = append([]Option{
		WithLogger(zap.New(core)),
		WithDocumentLoader(testLoader(t)),
		WithClock(func() time.Time { return fixedTime }),
	}, opts...)

	s, err := New(ledger, submitter, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return &fixture{ledger: ledger, submitter: submitter, session: s, logs: logs}
}

func journalMessages(s *Session) []string {
	var out []string
	for _, e := range s.Journal() {
		out = append(out, e.Message)
	}
	return out
}

// assertInOrder checks that want appears in got as a subsequence.
func assertInOrder(t *testing.T, got, want []string) {
	t.Helper()

	i := 0
	for _, msg := range got {
		if i < len(want) && msg == want[i] {
			i++
		}
	}
	assert.Equal(t, len(want), i, "missing %q in %v", want[min(i, len(want)-1)], got)
}

func TestNotConnected(t *testing.T) {
	s, err := New(nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, s.Connected())
	assert.NotEmpty(t, s.ID())
	assert.Empty(t, s.Submitter())

	_, err = s.ClaimFlow(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.ImportWallet(ctx, testMnemonic)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Overview(ctx, testMnemonic)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Balance(ctx, testAddress)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEmptyInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.ClaimFlow(ctx, "  ")
	assert.EqualError(t, err, "please enter a W3N name")
	_, err = f.session.ImportWallet(ctx, "")
	assert.EqualError(t, err, "mnemonic cannot be empty")
	_, err = f.session.Overview(ctx, " ")
	assert.ErrorIs(t, err, ErrEmptyMnemonic)
	_, err = f.session.ClaimForMnemonic(ctx, testMnemonic, "")
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = f.session.CreateDID(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyMnemonic)
}

func TestNoSubmitter(t *testing.T) {
	s, err := New(blockchain.NewMemoryLedger(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.ClaimFlow(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoSubmitter)
	_, err = s.CreateDID(ctx, testMnemonic)
	assert.ErrorIs(t, err, ErrNoSubmitter)

	res, err := s.ImportWallet(ctx, testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, testAddress, res.Address)
}

func TestClaimFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.session.ClaimFlow(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{"w3n:alice"}, res.AlsoKnownAs)
	assert.Equal(t, f.session.dids.URI(res.Holder.DIDAuth), res.HolderDID.URI())
	assert.Equal(t, f.session.dids.URI(res.Issuer.DIDAuth), res.IssuerDID.URI())
	assert.True(t, res.IssuerDID.Document.HasAssertionMethod())

	vc := res.Credential
	assert.True(t, strings.HasPrefix(vc.ID(), credential.CredentialIDPrefix))
	assert.Equal(t, res.IssuerDID.URI(), vc.Issuer())
	assert.Equal(t, res.HolderDID.URI(), vc.Holder())
	assert.Equal(t, "alice", vc.Subject()["Username"])

	messages := journalMessages(f.session)
	assertInOrder(t, messages, []string{
		"Starting W3N claim process...",
		"Submitter address: " + f.submitter.GetAddress(),
		"Submitter balance: 10000000000000000000 (10 PILA)",
		"Generating accounts with mnemonics...",
		"ISSUER_ACCOUNT_ADDRESS=" + res.Issuer.Address(),
		"HOLDER_ACCOUNT_ADDRESS=" + res.Holder.Address(),
		"Generating holder DID...",
		"Holder DID: " + res.HolderDID.URI(),
		"Claiming W3N: alice",
		"W3N claimed successfully: alice",
		"Generating issuer DID...",
		"Verifying DID...",
		"Issuing credential...",
		"Process completed successfully!",
		"Credential ID: " + vc.ID(),
	})
	assert.Equal(t, len(messages), f.logs.Len())

	doc, err := f.session.ResolveDID(ctx, res.HolderDID.URI())
	require.NoError(t, err)
	assert.Equal(t, []string{"w3n:alice"}, doc.AlsoKnownAs)

	data, err := vc.ToJSON()
	require.NoError(t, err)
	verified, err := f.session.VerifyCredential(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, vc.ID(), verified.ID())
}

func TestClaimFlowFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.ClaimFlow(ctx, "alice")
	require.NoError(t, err)

	_, err = f.session.ClaimFlow(ctx, "alice")
	require.ErrorIs(t, err, w3n.ErrNameTaken)

	messages := journalMessages(f.session)
	assert.Equal(t, "Starting W3N claim process...", messages[0])
	assert.Equal(t, "Process failed: "+err.Error(), messages[len(messages)-1])
	assert.NotContains(t, messages, "Generating issuer DID...")

	_, err = f.session.ClaimFlow(ctx, "a!")
	assert.ErrorIs(t, err, w3n.ErrInvalidName)
}

// stalledRegistry never mines name claims.
type stalledRegistry struct {
	*blockchain.MemoryLedger
}

func (stalledRegistry) ClaimName(ctx context.Context, _ *blockchain.NameRequest) (*blockchain.TxResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClaimFlowTimeout(t *testing.T) {
	f := newFixture(t)

	core, logs := observer.New(zap.InfoLevel)
	s, err := New(stalledRegistry{f.ledger}, f.submitter,
		WithLogger(zap.New(core)),
		WithDocumentLoader(testLoader(t)),
		WithTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.ClaimFlow(context.Background(), "alice")
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("claim flow did not time out")
	}
	require.ErrorIs(t, err, context.DeadlineExceeded)

	messages := journalMessages(s)
	assert.Equal(t, "Claiming W3N: alice", messages[len(messages)-2])
	assert.Equal(t, "Process failed: "+err.Error(), messages[len(messages)-1])
	assert.Equal(t, 1, logs.FilterMessage("Process failed: "+err.Error()).Len())
}

// signingRegistry signs DID creations without sending them.
type signingRegistry struct {
	*blockchain.MemoryLedger
}

func (signingRegistry) CreateDID(context.Context, *blockchain.CreateDIDRequest) (*blockchain.TxResult, error) {
	return &blockchain.TxResult{Status: blockchain.TxStatusSigned, TxHash: "0xabc", RawTx: "f86c"}, nil
}

func TestCreateDIDNotSent(t *testing.T) {
	f := newFixture(t)

	core, logs := observer.New(zap.InfoLevel)
	s, err := New(signingRegistry{f.ledger}, f.submitter,
		WithLogger(zap.New(core)),
		WithDocumentLoader(testLoader(t)),
	)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.CreateDID(context.Background(), testMnemonic)
	require.ErrorIs(t, err, blockchain.ErrNotSent)

	var unsent *blockchain.UnsentTxError
	require.ErrorAs(t, err, &unsent)
	assert.Equal(t, "f86c", unsent.Tx.RawTx)

	messages := journalMessages(s)
	require.NotEmpty(t, messages)
	assert.Equal(t, "Transaction signed, not sent", messages[len(messages)-1])
	assert.Zero(t, logs.FilterMessageSnippet("Process failed").Len())
}

func TestClaimFlowWithoutCType(t *testing.T) {
	f := newFixture(t, WithCTypeHash(common.HexToHash("0x01")))

	_, err := f.session.ClaimFlow(context.Background(), "alice")
	require.EqualError(t, err, "could not fetch CType: CType not found on chain")
}

func TestImportWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.session.ImportWallet(ctx, testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Address: testAddress}, res)
	assert.Equal(t, []string{"Address exists but has no activity"}, journalMessages(f.session))

	f.ledger.Fund(common.HexToAddress(testAddress), big.NewInt(1))
	res, err = f.session.ImportWallet(ctx, testMnemonic)
	require.NoError(t, err)
	assert.True(t, res.HasActivity)
	assert.Equal(t, []string{"Address exists with activity"}, journalMessages(f.session))

	_, err = f.session.ImportWallet(ctx, "abandon abandon abandon")
	require.ErrorIs(t, err, account.ErrInvalidMnemonic)
	assert.Equal(t, "Process failed: "+err.Error(), journalMessages(f.session)[0])
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.session.Overview(ctx, testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, testAddress, res.Address)
	assert.Equal(t, testDIDURI, res.DIDURI)
	assert.Nil(t, res.DID)
	assert.Empty(t, res.Name)
	assert.Equal(t, "0 PILA", res.BalanceText)
	assert.Equal(t, []string{
		"Retrieving holder DID...",
		"didUri: " + testDIDURI,
		"DID not found, skipping W3N check",
	}, journalMessages(f.session))

	_, err = f.session.CreateDID(ctx, testMnemonic)
	require.NoError(t, err)
	res, err = f.session.Overview(ctx, testMnemonic)
	require.NoError(t, err)
	require.NotNil(t, res.DID)
	assert.Empty(t, res.Name)
	assertInOrder(t, journalMessages(f.session), []string{"Checking for Web3 Name...", "No W3N found"})

	_, err = f.session.ClaimForMnemonic(ctx, testMnemonic, "alice")
	require.NoError(t, err)
	res, err = f.session.Overview(ctx, testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Name)
	assert.Equal(t, "alice", res.DID.Name())
	assertInOrder(t, journalMessages(f.session), []string{
		"DID document found: " + testDIDURI,
		"Checking for Web3 Name...",
		"Found W3N: alice",
	})
}

func TestClaimForMnemonic(t *testing.T) {
	ctx := context.Background()

	t.Run("creates DID", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.session.ClaimForMnemonic(ctx, testMnemonic, "alice")
		require.NoError(t, err)
		assert.Equal(t, testDIDURI, res.HolderDID.URI())
		assert.Equal(t, testAddress, res.Holder.Address())
		assert.Equal(t, []string{"w3n:alice"}, res.AlsoKnownAs)
		assert.Contains(t, journalMessages(f.session), "Generating holder DID...")
		assertInOrder(t, journalMessages(f.session), []string{
			"Starting W3N claim...",
			"Retrieving holder DID...",
			"Holder DID: " + testDIDURI,
			"W3N claimed: alice",
			"Credential issued: " + res.Credential.ID(),
		})
	})

	t.Run("reuses DID", func(t *testing.T) {
		f := newFixture(t)

		created, err := f.session.CreateDID(ctx, testMnemonic)
		require.NoError(t, err)

		res, err := f.session.ClaimForMnemonic(ctx, testMnemonic, "bob")
		require.NoError(t, err)
		assert.Equal(t, created.URI(), res.HolderDID.URI())
		assert.NotContains(t, journalMessages(f.session), "Generating holder DID...")
	})

	t.Run("already named", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.session.ClaimForMnemonic(ctx, testMnemonic, "alice")
		require.NoError(t, err)
		_, err = f.session.ClaimForMnemonic(ctx, testMnemonic, "carol")
		assert.ErrorIs(t, err, w3n.ErrAlreadyNamed)
	})
}

func TestNamesAndRelease(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := newFixture(t, WithStore(st, ""))

	_, err = f.session.ClaimForMnemonic(ctx, testMnemonic, "alice")
	require.NoError(t, err)

	stored, err := st.ListNames(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	name, err := f.session.LookupName(ctx, testDIDURI)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	owner, err := f.session.NameOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, testDIDURI, owner)

	released, err := f.session.ReleaseName(ctx, testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, "alice", released)

	owner, err = f.session.NameOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, owner)

	stored, err = st.ListNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	holder, err := st.GetDID(ctx, testDIDURI)
	require.NoError(t, err)
	assert.NotContains(t, string(holder.Document), "w3n:alice")

	_, err = f.session.ReleaseName(ctx, testMnemonic)
	assert.ErrorIs(t, err, w3n.ErrNoName)
}

func TestIssueCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	holder, err := f.session.CreateDID(ctx, testMnemonic)
	require.NoError(t, err)
	_, err = f.session.CreateDID(ctx, issuerMnemonic)
	require.NoError(t, err)

	req := IssueRequest{
		IssuerMnemonic: issuerMnemonic,
		Holder:         holder.URI(),
		Claims:         map[string]any{"Username": "alice"},
		JWT:            true,
	}
	_, err = f.session.IssueCredential(ctx, req)
	require.ErrorContains(t, err, "has no assertion method")

	issuer, err := f.session.AddAssertion(ctx, issuerMnemonic)
	require.NoError(t, err)
	assert.True(t, issuer.Document.HasAssertionMethod())

	res, err := f.session.IssueCredential(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, issuer.URI(), res.Credential.Issuer())
	require.NotEmpty(t, res.JWT)

	fromJWT, err := f.session.VerifyCredential(ctx, []byte(res.JWT+"\n"))
	require.NoError(t, err)
	assert.Equal(t, res.Credential.ID(), fromJWT.ID())

	data, err := res.Credential.ToJSON()
	require.NoError(t, err)
	_, err = f.session.VerifyCredential(ctx, data)
	require.NoError(t, err)

	req.Claims = map[string]any{"Nickname": "alice"}
	_, err = f.session.IssueCredential(ctx, req)
	assert.ErrorIs(t, err, credential.ErrClaimsInvalid)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := newFixture(t, WithStore(st, "secret"))

	res, err := f.session.ClaimFlow(ctx, "alice")
	require.NoError(t, err)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 6)

	key, err := st.LoadAccount(ctx, res.Holder.Address(), "secret")
	require.NoError(t, err)
	assert.Equal(t, res.Holder.Account.PrivateKey.D, key.D)

	holder, err := st.GetDID(ctx, res.HolderDID.URI())
	require.NoError(t, err)
	assert.Equal(t, RoleHolder, holder.Role)
	var doc did.Document
	require.NoError(t, json.Unmarshal(holder.Document, &doc))
	assert.Equal(t, []string{"w3n:alice"}, doc.AlsoKnownAs)

	names, err := st.ListNames(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, store.Name{Name: "alice", DID: res.HolderDID.URI(), ClaimedAt: names[0].ClaimedAt}, names[0])

	creds, err := st.ListCredentials(ctx, res.HolderDID.URI())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, res.Credential.ID(), creds[0].ID)
}

func TestPersistenceWithoutPassphrase(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := newFixture(t, WithStore(st, ""))

	_, err = f.session.CreateDID(ctx, testMnemonic)
	require.NoError(t, err)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = st.GetDID(ctx, testDIDURI)
	assert.NoError(t, err)
}

func TestDialMemory(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"W3N_RPC_URL":            config.MemoryRPC,
		"W3N_SUBMITTER_MNEMONIC": testMnemonic,
	})
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	s, err := Dial(context.Background(), cfg, zap.New(core), WithDocumentLoader(testLoader(t)))
	require.NoError(t, err)

	assert.True(t, s.Connected())
	assert.Equal(t, testAddress, s.Submitter())
	assert.Equal(t, 1, logs.FilterMessage("Connected to network").Len())

	bal, err := s.Balance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "1000 PILA", bal.Text)

	_, err = s.ClaimFlow(context.Background(), "alice")
	require.NoError(t, err)

	s.Close()
	assert.False(t, s.Connected())
}

func TestDialValidatesClaims(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.LoadFrom(map[string]string{"W3N_RPC_URL": config.MemoryRPC})
	require.NoError(t, err)

	s, err := Dial(ctx, cfg, nil, WithDocumentLoader(testLoader(t)))
	require.NoError(t, err)
	defer s.Close()

	holder, err := s.CreateDID(ctx, testMnemonic)
	require.NoError(t, err)
	_, err = s.CreateDID(ctx, issuerMnemonic)
	require.NoError(t, err)
	_, err = s.AddAssertion(ctx, issuerMnemonic)
	require.NoError(t, err)

	req := IssueRequest{
		IssuerMnemonic: issuerMnemonic,
		Holder:         holder.URI(),
		Claims:         map[string]any{"Nickname": 42, "Admin": true},
	}
	_, err = s.IssueCredential(ctx, req)
	assert.ErrorIs(t, err, credential.ErrClaimsInvalid)

	req.Claims = map[string]any{"Username": "alice"}
	res, err := s.IssueCredential(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, credential.DefaultCTypeHash, res.Credential.CTypeHash())
}

func TestDialRemoteSigner(t *testing.T) {
	key, err := account.GenerateKeyPair()
	require.NoError(t, err)
	local, err := key.Signer()
	require.NoError(t, err)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		var req struct {
			Address string `json:"address"`
			Hash    string `json:"hash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		hash, err := hex.DecodeString(strings.TrimPrefix(req.Hash, "0x"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sig, err := local.Sign(hash)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"signature": "0x" + hex.EncodeToString(sig)})
	}))
	t.Cleanup(func() {
		server.Close()
		http.DefaultTransport.(*http.Transport).CloseIdleConnections()
	})

	cfg, err := config.LoadFrom(map[string]string{
		"W3N_RPC_URL":           config.MemoryRPC,
		"W3N_SIGNER_URL":        server.URL,
		"W3N_SIGNER_API_KEY":    "secret",
		"W3N_SUBMITTER_ADDRESS": local.GetAddress(),
	})
	require.NoError(t, err)

	s, err := Dial(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, local.GetAddress(), s.Submitter())

	res, err := s.CreateDID(context.Background(), testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, testDIDURI, res.URI())
	assert.Positive(t, calls.Load())
}

func TestDialErrors(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"W3N_RPC_URL":       config.MemoryRPC,
		"W3N_SUBMITTER_KEY": "0xzz",
	})
	require.NoError(t, err)
	_, err = Dial(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "invalid submitter key")

	cfg, err = config.LoadFrom(map[string]string{"W3N_RPC_URL": "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = Dial(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "must be a contract address")
}
