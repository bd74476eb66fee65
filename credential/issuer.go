package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/piprate/json-gold/ld"
	"go.uber.org/zap"

	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/signer"
)

// issuanceDateLayout is RFC 3339 in UTC with milliseconds.
const issuanceDateLayout = "2006-01-02T15:04:05.000Z07:00"

// Issuer issues credentials under a CType anchored on chain.
type Issuer struct {
	registry blockchain.Registry
	hash     common.Hash
	ctypes   []*CType
	schemas  map[common.Hash]*CType
	logger   *zap.Logger
	loader   ld.DocumentLoader
	clock    func() time.Time
	timeout  time.Duration
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithCTypeHash sets the CType credentials are issued under.
func WithCTypeHash(hash common.Hash) IssuerOption {
	return func(i *Issuer) { i.hash = hash }
}

// WithCType adds a local CType definition. Claims are validated against it
// when its hash is the one credentials are issued under.
func WithCType(ct *CType) IssuerOption {
	return func(i *Issuer) { i.ctypes = append(i.ctypes, ct) }
}

// WithCTypeSchema validates claims issued under hash against ct. It binds
// a CType anchored by another toolchain, whose hash is not the local
// Keccak256 hash of ct, to its definition.
func WithCTypeSchema(hash common.Hash, ct *CType) IssuerOption {
	return func(i *Issuer) { i.schemas[hash] = ct }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) IssuerOption {
	return func(i *Issuer) { i.logger = logger }
}

// WithIssuerDocumentLoader sets the JSON-LD document loader used for proofs.
func WithIssuerDocumentLoader(loader ld.DocumentLoader) IssuerOption {
	return func(i *Issuer) { i.loader = loader }
}

// WithClock sets the time source for issuance dates and credential IDs.
func WithClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) { i.clock = clock }
}

// WithTimeout bounds each registry round trip, including waiting for a
// CType registration to be mined. Zero disables the bound.
func WithTimeout(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.timeout = d }
}

// NewIssuer creates an Issuer. Credentials issued under DefaultCTypeHash
// are validated against PassportCType.
func NewIssuer(registry blockchain.Registry, opts ...IssuerOption) (*Issuer, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	i := &Issuer{
		registry: registry,
		hash:     common.HexToHash(DefaultCTypeHash),
		schemas: map[common.Hash]*CType{
			common.HexToHash(DefaultCTypeHash): PassportCType(),
		},
		logger:  zap.NewNop(),
		clock:   time.Now,
		timeout: did.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = zap.NewNop()
	}

	for _, ct := range i.ctypes {
		if ct == nil {
			continue
		}
		h, err := ct.Hash()
		if err != nil {
			return nil, err
		}
		i.schemas[h] = ct
	}

	return i, nil
}

// CTypeHash returns the CType hash credentials are issued under.
func (i *Issuer) CTypeHash() common.Hash {
	return i.hash
}

// FetchCType reads the issuer's CType from chain.
func (i *Issuer) FetchCType(ctx context.Context) (*blockchain.CTypeRecord, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	record, err := i.registry.CType(ctx, i.hash)
	if errors.Is(err, blockchain.ErrCTypeNotFound) {
		return nil, errors.New("could not fetch CType: CType not found on chain")
	}
	if err != nil {
		return nil, fmt.Errorf("could not fetch CType: %w", err)
	}

	i.logger.Debug("CType fetched",
		zap.String("ctype", CTypeID(record.Hash)),
		zap.String("creator", record.Creator.Hex()),
		zap.Uint64("block", record.CreatedAt))

	return record, nil
}

// Issue creates a credential for holderDID with claims, signed by the
// issuer DID's assertion key.
func (i *Issuer) Issue(ctx context.Context, issuer *did.Result, holderDID string, claims map[string]any) (*Credential, error) {
	if issuer == nil || issuer.Document == nil {
		return nil, errors.New("issuer DID is required")
	}
	if issuer.Signers.AssertionMethod == nil || !issuer.Document.HasAssertionMethod() {
		return nil, fmt.Errorf("issuer %s has no assertion method", issuer.URI())
	}
	if _, err := did.AddressFromDID(holderDID, ""); err != nil {
		return nil, fmt.Errorf("invalid holder: %w", err)
	}

	if _, err := i.FetchCType(ctx); err != nil {
		return nil, err
	}

	if ct := i.schemas[i.hash]; ct != nil {
		if err := ct.Validate(claims); err != nil {
			return nil, err
		}
	} else {
		i.logger.Debug("no local CType definition, claims not validated", zap.String("ctype", CTypeID(i.hash)))
	}

	now := i.clock().UTC()

	subject := map[string]any{"id": holderDID}
	for k, v := range claims {
		if k != "id" {
			subject[k] = v
		}
	}

	vc := Credential{
		"@context": []any{
			VCContextV1,
			map[string]any{"@vocab": CTypeID(i.hash) + "#"},
		},
		"id":                CredentialIDPrefix + uuid.NewString(),
		"type":              []any{TypeCredential},
		"issuer":            issuer.URI(),
		"issuanceDate":      now.Format(issuanceDateLayout),
		"credentialSubject": subject,
		"cTypeHash":         i.hash.Hex(),
	}

	// Normalize claim values to their JSON form.
	data, err := json.Marshal(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential: %w", err)
	}
	vc = Credential{}
	if err := json.Unmarshal(data, &vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	assertion, err := issuer.Signers.AssertionMethod.Signer()
	if err != nil {
		return nil, err
	}
	vm := issuer.Document.Keys(blockchain.RelationshipAssertionMethod)[0].ID
	if err := vc.AddProof(assertion, vm, now.Format(time.RFC3339), i.processorOpts()...); err != nil {
		return nil, err
	}

	i.logger.Info("Credential issued",
		zap.String("id", vc.ID()),
		zap.String("issuer", issuer.URI()),
		zap.String("holder", holderDID))

	return &vc, nil
}

// Verify verifies a credential with the issuer's document loader.
func (i *Issuer) Verify(ctx context.Context, vc *Credential, resolver Resolver) error {
	return vc.Verify(ctx, resolver, i.processorOpts()...)
}

// RegisterCType anchors ct under the issuer DID. The registration is
// authorized by the DID's assertion key.
func (i *Issuer) RegisterCType(ctx context.Context, issuer *did.Result, submitter signer.SignerProvider, ct *CType) (common.Hash, error) {
	if issuer == nil || issuer.Document == nil || issuer.Signers.AssertionMethod == nil {
		return common.Hash{}, errors.New("issuer DID with an assertion key is required")
	}
	if ct == nil {
		return common.Hash{}, errors.New("CType is required")
	}

	hash, err := ct.Hash()
	if err != nil {
		return common.Hash{}, err
	}

	didSigner, err := issuer.Signers.AssertionMethod.Signer()
	if err != nil {
		return common.Hash{}, err
	}
	didAddr, err := issuer.Document.Address()
	if err != nil {
		return common.Hash{}, err
	}

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	res, err := i.registry.RegisterCType(ctx, &blockchain.CTypeRequest{
		Submitter: submitter,
		DIDSigner: didSigner,
		DID:       didAddr,
		Hash:      hash,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to register CType: %w", err)
	}
	if err := blockchain.Unsent(res); err != nil {
		return common.Hash{}, err
	}
	if !res.Confirmed() {
		return common.Hash{}, fmt.Errorf("register CType failed: %s", res.StatusString())
	}

	i.logger.Info("CType registered", zap.String("ctype", CTypeID(hash)), zap.String("tx", res.TxHash))

	return hash, nil
}

func (i *Issuer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, i.timeout)
}

func (i *Issuer) processorOpts() []ProcessorOpt {
	if i.loader == nil {
		return nil
	}

	return []ProcessorOpt{WithDocumentLoader(i.loader)}
}
