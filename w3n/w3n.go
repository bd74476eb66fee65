// Package w3n claims and looks up Web3 Names, the human readable handles
// linked to DIDs by the name registry.
package w3n

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/signer"
)

// Name length bounds.
const (
	MinNameLength = 3
	MaxNameLength = 32
)

var (
	// ErrInvalidName is returned for names outside the allowed length or
	// character set.
	ErrInvalidName = errors.New("invalid web3 name")
	// ErrNameTaken is returned when another DID owns the name.
	ErrNameTaken = errors.New("web3 name already taken")
	// ErrAlreadyNamed is returned when the DID already has a name.
	ErrAlreadyNamed = errors.New("DID already has a web3 name")
	// ErrNotConfirmed is returned when a name transaction was mined but
	// reverted.
	ErrNotConfirmed = errors.New("transaction not confirmed")
	// ErrNoName is returned when releasing from a DID without a name.
	ErrNoName = errors.New("DID has no web3 name")
)

// ValidateName trims name and checks it is 3 to 32 characters of a-z, 0-9,
// '-' and '_'.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: %q must be %d to %d characters", ErrInvalidName, name, MinNameLength, MaxNameLength)
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}

	return name, nil
}

// Service links names to DIDs.
type Service struct {
	registry blockchain.Registry
	method   string
	logger   *zap.Logger
	timeout  time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTimeout bounds each name operation, including waiting for its
// transaction. Zero disables the bound.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// NewService creates a Service. The method names DIDs returned by Owner.
func NewService(registry blockchain.Registry, method string, logger *zap.Logger, opts ...ServiceOption) *Service {
	if method == "" {
		method = did.DefaultMethod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{registry: registry, method: method, logger: logger, timeout: did.DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Claim links name to the holder DID and returns its refreshed alsoKnownAs.
func (s *Service) Claim(ctx context.Context, name string, holder *did.Result, submitter signer.SignerProvider) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	if holder == nil || holder.Document == nil || holder.Signers.Authentication == nil {
		return nil, errors.New("holder DID with an authentication key is required")
	}

	didAddr, err := holder.Document.Address()
	if err != nil {
		return nil, err
	}

	owner, err := s.registry.OwnerOf(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up name owner: %w", err)
	}
	if owner != (common.Address{}) {
		if owner == didAddr {
			return nil, fmt.Errorf("%w: %s already owns %q", ErrAlreadyNamed, holder.URI(), name)
		}
		return nil, fmt.Errorf("%w: %q is owned by %s", ErrNameTaken, name, did.ToDID(s.method, owner.Hex()))
	}

	current, err := s.registry.NameOf(ctx, didAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to look up current name: %w", err)
	}
	if current != "" {
		return nil, fmt.Errorf("%w: %s is %q", ErrAlreadyNamed, holder.URI(), current)
	}

	didSigner, err := holder.Signers.Authentication.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to create DID signer: %w", err)
	}

	res, err := s.registry.ClaimName(ctx, &blockchain.NameRequest{
		Submitter: submitter,
		DIDSigner: didSigner,
		DID:       didAddr,
		Name:      name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim %q: %w", name, err)
	}
	if err := blockchain.Unsent(res); err != nil {
		return nil, err
	}
	if !res.Confirmed() {
		return nil, fmt.Errorf("%w: claim %q: %s", ErrNotConfirmed, name, res.StatusString())
	}

	s.logger.Info("W3N claimed", zap.String("name", name), zap.String("did", holder.URI()), zap.String("tx", res.TxHash))

	holder.Document.AlsoKnownAs = []string{did.W3NPrefix + name}

	return holder.Document.AlsoKnownAs, nil
}

// Lookup returns the name linked to didURI, or "" when there is none.
func (s *Service) Lookup(ctx context.Context, didURI string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	addr, err := did.AddressFromDID(didURI, s.method)
	if err != nil {
		return "", err
	}

	name, err := s.registry.NameOf(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("failed to look up web3 name: %w", err)
	}

	return name, nil
}

// Owner returns the DID URI owning name, or "" when it is unclaimed.
func (s *Service) Owner(ctx context.Context, name string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}

	owner, err := s.registry.OwnerOf(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up name owner: %w", err)
	}
	if owner == (common.Address{}) {
		return "", nil
	}

	return did.ToDID(s.method, owner.Hex()), nil
}

// Release unlinks the holder DID's name.
func (s *Service) Release(ctx context.Context, holder *did.Result, submitter signer.SignerProvider) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if holder == nil || holder.Document == nil || holder.Signers.Authentication == nil {
		return errors.New("holder DID with an authentication key is required")
	}

	didAddr, err := holder.Document.Address()
	if err != nil {
		return err
	}

	current, err := s.registry.NameOf(ctx, didAddr)
	if err != nil {
		return fmt.Errorf("failed to look up current name: %w", err)
	}
	if current == "" {
		return fmt.Errorf("%w: %s", ErrNoName, holder.URI())
	}

	didSigner, err := holder.Signers.Authentication.Signer()
	if err != nil {
		return fmt.Errorf("failed to create DID signer: %w", err)
	}

	res, err := s.registry.ReleaseName(ctx, &blockchain.NameRequest{
		Submitter: submitter,
		DIDSigner: didSigner,
		DID:       didAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to release %q: %w", current, err)
	}
	if err := blockchain.Unsent(res); err != nil {
		return err
	}
	if !res.Confirmed() {
		return fmt.Errorf("%w: release %q: %s", ErrNotConfirmed, current, res.StatusString())
	}

	s.logger.Info("W3N released", zap.String("name", current), zap.String("did", holder.URI()), zap.String("tx", res.TxHash))
	holder.Document.AlsoKnownAs = nil

	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.timeout)
}
