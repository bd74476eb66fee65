package did

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/signer"
)

// DefaultTimeout bounds each registry round trip.
const DefaultTimeout = 2 * time.Minute

// Signers holds the private keys of a DID by relationship.
type Signers struct {
	Authentication  *account.KeyPair
	AssertionMethod *account.KeyPair
}

// Result is a DID together with the keys that control it.
type Result struct {
	Document *Document
	Signers  Signers
}

// URI returns the DID URI.
func (r *Result) URI() string {
	if r == nil || r.Document == nil {
		return ""
	}

	return r.Document.ID
}

// Address returns the DID's account address.
func (r *Result) Address() (common.Address, error) {
	if r == nil || r.Document == nil {
		return common.Address{}, errors.New("DID has no document")
	}

	return r.Document.Address()
}

// Generator creates and resolves DIDs against a registry.
type Generator struct {
	registry blockchain.Registry
	method   string
	logger   *zap.Logger
	timeout  time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithMethod sets the DID method, e.g. "did:kilt".
func WithMethod(method string) Option {
	return func(g *Generator) { g.method = method }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithTimeout bounds each registry round trip. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// NewGenerator creates a Generator.
func NewGenerator(registry blockchain.Registry, opts ...Option) (*Generator, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	g := &Generator{
		registry: registry,
		method:   DefaultMethod,
		logger:   zap.NewNop(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.method == "" {
		return nil, errors.New("DID method is required")
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}

	return g, nil
}

// Method returns the DID method.
func (g *Generator) Method() string {
	return g.method
}

// URI returns the DID URI of an authentication key.
func (g *Generator) URI(authKey *account.KeyPair) string {
	return ToDID(g.method, authKey.GetAddress())
}

// URIFromMnemonic returns the DID URI derived from a mnemonic.
func (g *Generator) URIFromMnemonic(mnemonic string) (string, error) {
	mnemonic = account.NormalizeMnemonic(mnemonic)
	if err := account.ValidateMnemonic(mnemonic); err != nil {
		return "", err
	}

	authKey, err := account.DerivePath(mnemonic, account.DIDAuthenticationPath)
	if err != nil {
		return "", fmt.Errorf("failed to derive DID authentication key: %w", err)
	}

	return g.URI(authKey), nil
}

// Create anchors a new DID controlled by authKey. The submitter pays.
func (g *Generator) Create(ctx context.Context, submitter signer.SignerProvider, authKey *account.KeyPair) (*Result, error) {
	if authKey == nil {
		return nil, errors.New("authentication key is required")
	}

	id := g.URI(authKey)
	doc := NewDocument(id, authKey.PublicKeyBytes(), nil)
	docHash, err := doc.Hash()
	if err != nil {
		return nil, err
	}

	didSigner, err := authKey.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to create DID signer: %w", err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	res, err := g.registry.CreateDID(ctx, &blockchain.CreateDIDRequest{
		Submitter:         submitter,
		DIDSigner:         didSigner,
		AuthenticationKey: authKey.PublicKeyBytes(),
		DocHash:           docHash,
	})
	if err != nil {
		return nil, fmt.Errorf("create DID failed: %w", err)
	}
	if err := blockchain.Unsent(res); err != nil {
		return nil, err
	}
	if !res.Confirmed() {
		return nil, fmt.Errorf("create DID failed: %s", res.StatusString())
	}

	g.logger.Info("DID_URI="+id, zap.String("tx", res.TxHash), zap.Uint64("block", res.BlockNumber))

	return &Result{
		Document: doc,
		Signers:  Signers{Authentication: authKey},
	}, nil
}

// AddAssertionMethod sets the DID's assertion key. A nil key is replaced
// by a fresh random key.
func (g *Generator) AddAssertionMethod(ctx context.Context, submitter signer.SignerProvider, res *Result, key *account.KeyPair) error {
	return g.SetVerificationMethod(ctx, submitter, res, key, blockchain.RelationshipAssertionMethod)
}

// SetVerificationMethod sets the key of rel on the DID of res and updates
// res on success. A nil key is replaced by a fresh random key.
func (g *Generator) SetVerificationMethod(ctx context.Context, submitter signer.SignerProvider, res *Result, key *account.KeyPair, rel blockchain.Relationship) error {
	if res == nil || res.Document == nil || res.Signers.Authentication == nil {
		return errors.New("DID with an authentication key is required")
	}

	if key == nil {
		var err error
		if key, err = account.GenerateKeyPair(); err != nil {
			return err
		}
	}

	did, err := res.Document.Address()
	if err != nil {
		return err
	}

	signers := res.Signers
	switch rel {
	case blockchain.RelationshipAuthentication:
		signers.Authentication = key
	case blockchain.RelationshipAssertionMethod:
		signers.AssertionMethod = key
	default:
		return fmt.Errorf("unsupported relationship %d", rel)
	}

	doc := NewDocument(res.Document.ID, signers.Authentication.PublicKeyBytes(), signers.AssertionMethod.PublicKeyBytes())
	doc.AlsoKnownAs = res.Document.AlsoKnownAs
	docHash, err := doc.Hash()
	if err != nil {
		return err
	}

	didSigner, err := res.Signers.Authentication.Signer()
	if err != nil {
		return fmt.Errorf("failed to create DID signer: %w", err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	tx, err := g.registry.SetVerificationMethod(ctx, &blockchain.SetVerificationMethodRequest{
		Submitter:    submitter,
		DIDSigner:    didSigner,
		DID:          did,
		Relationship: rel,
		Key:          key.PublicKeyBytes(),
		DocHash:      docHash,
	})
	if err != nil {
		return fmt.Errorf("add verification method failed: %w", err)
	}
	if err := blockchain.Unsent(tx); err != nil {
		return err
	}
	if !tx.Confirmed() {
		return fmt.Errorf("add verification method failed: %s", tx.StatusString())
	}

	g.logger.Info("Verification method set",
		zap.String("did", doc.ID),
		zap.Stringer("relationship", rel),
		zap.String("tx", tx.TxHash))

	res.Document = doc
	res.Signers = signers

	return nil
}

// Resolve builds the document of didURI from chain state.
func (g *Generator) Resolve(ctx context.Context, didURI string) (*Document, error) {
	addr, err := AddressFromDID(didURI, g.method)
	if err != nil {
		return nil, err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	record, err := g.registry.ResolveDID(ctx, addr)
	if errors.Is(err, blockchain.ErrDIDNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, didURI)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DID: %w", err)
	}

	doc := NewDocument(ToDID(g.method, addr.Hex()), record.AuthenticationKey, record.AssertionKey)
	docHash, err := doc.Hash()
	if err != nil {
		return nil, err
	}
	if docHash != record.DocHash {
		return nil, fmt.Errorf("DID document hash mismatch for %s: chain has %s, computed %s", doc.ID, record.DocHash.Hex(), docHash.Hex())
	}

	name, err := g.registry.NameOf(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to look up web3 name: %w", err)
	}
	if name != "" {
		doc.AlsoKnownAs = []string{W3NPrefix + name}
	}

	return doc, nil
}

// ResolveFromMnemonic resolves the DID derived from a mnemonic.
func (g *Generator) ResolveFromMnemonic(ctx context.Context, mnemonic string) (*Document, error) {
	uri, err := g.URIFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	return g.Resolve(ctx, uri)
}

// Load resolves the DID of a wallet and attaches the wallet's keys. The
// assertion key is attached only when the DID lists it.
func (g *Generator) Load(ctx context.Context, wallet *account.Wallet) (*Result, error) {
	doc, err := g.Resolve(ctx, g.URI(wallet.DIDAuth))
	if err != nil {
		return nil, err
	}

	res := &Result{Document: doc, Signers: Signers{Authentication: wallet.DIDAuth}}
	for _, vm := range doc.Keys(blockchain.RelationshipAssertionMethod) {
		if vm.PublicKeyHex == wallet.DIDAssertion.GetPublicKeyHex() {
			res.Signers.AssertionMethod = wallet.DIDAssertion
		}
	}

	return res, nil
}

func (g *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, g.timeout)
}
