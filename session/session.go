// Package session runs the wallet flows: claiming a name end to end,
// importing a mnemonic and inspecting an address. Each flow records its
// log lines in a journal that callers can show to the user.
package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/piprate/json-gold/ld"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/config"
	"github.com/pilacorp/go-w3n-wallet/credential"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/signer"
	"github.com/pilacorp/go-w3n-wallet/store"
	"github.com/pilacorp/go-w3n-wallet/w3n"
)

var (
	// ErrNotConnected is returned by flows when no registry is attached.
	ErrNotConnected = errors.New("not connected to network")
	// ErrEmptyName is returned when a claim is started without a name.
	ErrEmptyName = errors.New("please enter a W3N name")
	// ErrEmptyMnemonic is returned when a mnemonic flow gets no input.
	ErrEmptyMnemonic = errors.New("mnemonic cannot be empty")
	// ErrNoSubmitter is returned by flows that send transactions when no
	// submitter account is configured.
	ErrNoSubmitter = errors.New("no submitter account configured")
)

// memoryFunds is the submitter balance of a memory:// session, in tokens.
const memoryFunds = 1000

// Store persists what the flows produce.
type Store interface {
	SaveAccount(ctx context.Context, label string, key *ecdsa.PrivateKey, passphrase string) (store.Account, error)
	SaveDID(ctx context.Context, d store.DID) error
	SaveName(ctx context.Context, n store.Name) error
	DeleteName(ctx context.Context, name string) error
	SaveCredential(ctx context.Context, c store.Credential) error
}

// Session binds a registry and a submitter to the wallet services.
type Session struct {
	id         string
	registry   blockchain.Registry
	submitter  signer.SignerProvider
	store      Store
	passphrase string

	base    *zap.Logger
	logger  *zap.Logger
	journal *Journal

	method    string
	ctypeHash common.Hash
	decimals  int
	symbol    string
	timeout   time.Duration
	loader    ld.DocumentLoader
	clock     func() time.Time

	dids   *did.Generator
	names  *w3n.Service
	issuer *credential.Issuer

	// mu serializes flows, which share the journal.
	mu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithStore persists accounts, DIDs, names and credentials. Account keys
// are stored only when passphrase is set.
func WithStore(st Store, passphrase string) Option {
	return func(s *Session) {
		s.store = st
		s.passphrase = passphrase
	}
}

// WithLogger sets the logger the journal is teed into.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.base = logger }
}

// WithMethod sets the DID method.
func WithMethod(method string) Option {
	return func(s *Session) { s.method = method }
}

// WithCTypeHash sets the CType credentials are issued under.
func WithCTypeHash(hash common.Hash) Option {
	return func(s *Session) { s.ctypeHash = hash }
}

// WithDecimals sets the token decimals used to format balances.
func WithDecimals(decimals int) Option {
	return func(s *Session) { s.decimals = decimals }
}

// WithSymbol sets the token symbol.
func WithSymbol(symbol string) Option {
	return func(s *Session) { s.symbol = symbol }
}

// WithTimeout bounds each chain call, including waiting for transactions
// to be mined. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithDocumentLoader sets the JSON-LD loader used for credential proofs.
func WithDocumentLoader(loader ld.DocumentLoader) Option {
	return func(s *Session) { s.loader = loader }
}

// WithClock sets the time source for credentials.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// New creates a session over registry. A nil registry yields a session
// that is not connected. A nil submitter limits it to read-only flows.
func New(registry blockchain.Registry, submitter signer.SignerProvider, opts ...Option) (*Session, error) {
	s := &Session{
		id:        uuid.NewString(),
		registry:  registry,
		submitter: submitter,
		base:      zap.NewNop(),
		journal:   NewJournal(),
		method:    did.DefaultMethod,
		ctypeHash: common.HexToHash(credential.DefaultCTypeHash),
		decimals:  config.DefaultDecimals,
		symbol:    config.DefaultSymbol,
		timeout:   did.DefaultTimeout,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.base == nil {
		s.base = zap.NewNop()
	}

	s.logger = s.base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, s.journal.Core(zapcore.InfoLevel))
	})).With(zap.String("session", s.id))

	if registry == nil {
		return s, nil
	}

	var err error
	s.dids, err = did.NewGenerator(registry,
		did.WithMethod(s.method),
		did.WithLogger(s.logger),
		did.WithTimeout(s.timeout),
	)
	if err != nil {
		return nil, err
	}

	s.names = w3n.NewService(registry, s.method, s.logger, w3n.WithTimeout(s.timeout))

	issuerOpts := []credential.IssuerOption{
		credential.WithCTypeHash(s.ctypeHash),
		credential.WithCType(credential.PassportCType()),
		credential.WithLogger(s.logger),
		credential.WithClock(s.clock),
		credential.WithTimeout(s.timeout),
	}
	if s.loader != nil {
		issuerOpts = append(issuerOpts, credential.WithIssuerDocumentLoader(s.loader))
	}
	s.issuer, err = credential.NewIssuer(registry, issuerOpts...)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Dial connects to the network named by cfg. memory:// starts an
// in-process ledger with the configured CType anchored and the submitter
// funded.
func Dial(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	submitter, err := submitterFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	hash := common.HexToHash(cfg.CTypeHash)

	var registry blockchain.Registry
	if cfg.IsMemory() {
		if submitter == nil {
			kp, err := account.GenerateKeyPair()
			if err != nil {
				return nil, err
			}
			if submitter, err = kp.Signer(); err != nil {
				return nil, err
			}
		}

		addr := common.HexToAddress(submitter.GetAddress())
		funds := new(big.Int).Mul(
			big.NewInt(memoryFunds),
			new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.TokenDecimals)), nil),
		)
		registry = blockchain.NewMemoryLedger(
			blockchain.WithCType(hash, addr),
			blockchain.WithFunds(addr, funds),
		)
	} else {
		client, err := blockchain.Dial(ctx, blockchain.ClientConfig{
			RPCURL:        cfg.RPCURL,
			ChainID:       cfg.ChainID,
			DIDRegistry:   cfg.DIDRegistry,
			NameRegistry:  cfg.NameRegistry,
			CTypeRegistry: cfg.CTypeRegistry,
			GasLimit:      cfg.GasLimit,
			NoSend:        cfg.NoSend,
		})
		if err != nil {
			return nil, err
		}
		registry = client
	}

	base := []Option{
		WithLogger(logger),
		WithMethod(cfg.Method),
		WithCTypeHash(hash),
		WithDecimals(cfg.TokenDecimals),
		WithSymbol(cfg.TokenSymbol),
		WithTimeout(cfg.TxTimeout),
	}
	s, err := New(registry, submitter, append(base, opts...)...)
	if err != nil {
		registry.Close()
		return nil, err
	}

	s.logger.Info("Connected to network", zap.String("rpc", cfg.RPCURL))

	return s, nil
}

func submitterFromConfig(cfg *config.Config) (signer.SignerProvider, error) {
	switch {
	case cfg.SubmitterKey != "":
		kp, err := account.KeyPairFromHex(cfg.SubmitterKey)
		if err != nil {
			return nil, fmt.Errorf("invalid submitter key: %w", err)
		}
		return kp.Signer()
	case cfg.SubmitterMnemonic != "":
		wallet, err := account.NewWallet(cfg.SubmitterMnemonic)
		if err != nil {
			return nil, fmt.Errorf("invalid submitter mnemonic: %w", err)
		}
		return wallet.Account.Signer()
	case cfg.SignerURL != "":
		remote, err := signer.NewRemoteProvider(cfg.SignerURL, cfg.SignerAPIKey, cfg.SubmitterAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid remote signer: %w", err)
		}
		return remote, nil
	default:
		return nil, nil
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Connected reports whether a registry is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.registry != nil
}

// Close disconnects from the network.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry != nil {
		s.registry.Close()
		s.registry = nil
	}
}

// Journal returns the entries of the current flow.
func (s *Session) Journal() []Entry {
	return s.journal.Entries()
}

// Submitter returns the submitter address, or "" when there is none.
func (s *Session) Submitter() string {
	if s.submitter == nil {
		return ""
	}

	return s.submitter.GetAddress()
}

// begin locks the session for a flow and clears the journal. The caller
// must call the returned function when the flow ends.
func (s *Session) begin(needSubmitter bool) (func(), error) {
	s.mu.Lock()
	if s.registry == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if needSubmitter && s.submitter == nil {
		s.mu.Unlock()
		return nil, ErrNoSubmitter
	}

	s.journal.Reset()

	return s.mu.Unlock, nil
}

func (s *Session) formatBalance(amount *big.Int) string {
	out := blockchain.FormatBalance(amount, s.decimals)
	if s.symbol != "" {
		out += " " + s.symbol
	}

	return out
}

// queryAccount reads the account of addr within the session timeout.
func (s *Session) queryAccount(ctx context.Context, addr common.Address) (*blockchain.AccountInfo, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.registry.AccountInfo(ctx, addr)
}

func (s *Session) fail(err error) error {
	var unsent *blockchain.UnsentTxError
	if errors.As(err, &unsent) {
		s.logger.Info("Transaction signed, not sent", zap.String("tx", unsent.Tx.TxHash))
		return err
	}

	s.logger.Error("Process failed: " + err.Error())
	return err
}
