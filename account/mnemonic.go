package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/sync/errgroup"
)

// Derivation paths used for a wallet mnemonic.
const (
	// AccountPath derives the key that holds funds.
	AccountPath = "m/44'/60'/0'/0/0"
	// DIDAuthenticationPath derives the DID authentication key.
	DIDAuthenticationPath = "m/44'/60'/1'/0'/0'"
	// DIDAssertionPath derives the DID assertion key.
	DIDAssertionPath = "m/44'/60'/1'/1'/0'"

	// MnemonicEntropyBits gives 12-word mnemonics.
	MnemonicEntropyBits = 128
)

// ErrInvalidMnemonic is returned for mnemonics with unknown words or a bad
// checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

// GenerateMnemonic creates a new 12-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// NormalizeMnemonic lower-cases the phrase and collapses whitespace.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic checks the word list and checksum of a mnemonic.
func ValidateMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic)) {
		return ErrInvalidMnemonic
	}

	return nil
}

// ParsePath parses a BIP-32 path such as m/44'/60'/0'/0/0 into child indices.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("invalid derivation path %q: must start with m", path)
	}

	indices := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		part = strings.TrimRight(part, "'h")

		idx, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path %q: %w", path, err)
		}

		if hardened {
			idx += uint64(bip32.FirstHardenedChild)
		}
		indices = append(indices, uint32(idx))
	}

	return indices, nil
}

// DerivePath derives the key pair at path from a mnemonic.
func DerivePath(mnemonic, path string) (*KeyPair, error) {
	mnemonic = NormalizeMnemonic(mnemonic)

	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	for _, idx := range indices {
		key, err = key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", idx, err)
		}
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes(key))
	if err != nil {
		return nil, fmt.Errorf("failed to convert derived key: %w", err)
	}

	return newKeyPair(privateKey), nil
}

// privateKeyBytes returns the 32-byte scalar of a BIP-32 private key.
func privateKeyBytes(key *bip32.Key) []byte {
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	if len(raw) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(raw):], raw)
		raw = padded
	}

	return raw
}

// Wallet groups the keys derived from one mnemonic.
type Wallet struct {
	Mnemonic     string
	Account      *KeyPair
	DIDAuth      *KeyPair
	DIDAssertion *KeyPair
}

// NewWallet derives the account and DID keys of a mnemonic.
func NewWallet(mnemonic string) (*Wallet, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}

	w := &Wallet{Mnemonic: mnemonic}

	var err error
	if w.Account, err = DerivePath(mnemonic, AccountPath); err != nil {
		return nil, fmt.Errorf("failed to derive account key: %w", err)
	}
	if w.DIDAuth, err = DerivePath(mnemonic, DIDAuthenticationPath); err != nil {
		return nil, fmt.Errorf("failed to derive DID authentication key: %w", err)
	}
	if w.DIDAssertion, err = DerivePath(mnemonic, DIDAssertionPath); err != nil {
		return nil, fmt.Errorf("failed to derive DID assertion key: %w", err)
	}

	return w, nil
}

// GenerateWallet creates a wallet from a fresh mnemonic.
func GenerateWallet() (*Wallet, error) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return nil, err
	}

	return NewWallet(mnemonic)
}

// Address returns the wallet's account address.
func (w *Wallet) Address() string {
	return w.Account.GetAddress()
}

// GeneratedAccounts holds the issuer and holder wallets of a claim flow.
type GeneratedAccounts struct {
	Issuer *Wallet
	Holder *Wallet
}

// GenerateAccounts creates the issuer and holder wallets concurrently.
func GenerateAccounts(ctx context.Context) (*GeneratedAccounts, error) {
	var out GeneratedAccounts

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := GenerateWallet()
		if err != nil {
			return fmt.Errorf("failed to generate issuer account: %w", err)
		}
		out.Issuer = w
		return nil
	})
	g.Go(func() error {
		w, err := GenerateWallet()
		if err != nil {
			return fmt.Errorf("failed to generate holder account: %w", err)
		}
		out.Holder = w
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &out, nil
}
