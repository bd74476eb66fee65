package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/credential"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/store"
)

// Balance is the balance of an address.
type Balance struct {
	Address string
	Free    *big.Int
	Nonce   uint64
	Text    string
}

// IssueRequest describes a credential issued by an existing issuer DID.
type IssueRequest struct {
	IssuerMnemonic string
	Holder         string
	Claims         map[string]any
	// JWT also encodes the credential as an ES256K JWT.
	JWT bool
}

// IssueResult holds an issued credential.
type IssueResult struct {
	Credential *credential.Credential
	JWT        string
}

// Balance returns the balance of address.
func (s *Session) Balance(ctx context.Context, address string) (*Balance, error) {
	done, err := s.begin(false)
	if err != nil {
		return nil, err
	}
	defer done()

	info, err := s.accountInfo(ctx, address)
	if err != nil {
		return nil, err
	}

	return &Balance{
		Address: info.Address.Hex(),
		Free:    info.Free,
		Nonce:   info.Nonce,
		Text:    s.formatBalance(info.Free),
	}, nil
}

// CreateDID anchors the DID of mnemonic.
func (s *Session) CreateDID(ctx context.Context, mnemonic string) (*did.Result, error) {
	wallet, err := walletOf(mnemonic)
	if err != nil {
		return nil, err
	}

	done, err := s.begin(true)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := s.dids.Create(ctx, s.submitter, wallet.DIDAuth)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.persistWallet(ctx, RoleHolder, wallet); err != nil {
		return nil, err
	}
	if err := s.persistDID(ctx, RoleHolder, res); err != nil {
		return nil, err
	}

	return res, nil
}

// AddAssertion sets the mnemonic's assertion key on its DID, making it
// able to issue credentials.
func (s *Session) AddAssertion(ctx context.Context, mnemonic string) (*did.Result, error) {
	wallet, err := walletOf(mnemonic)
	if err != nil {
		return nil, err
	}

	done, err := s.begin(true)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := s.dids.Load(ctx, wallet)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.dids.AddAssertionMethod(ctx, s.submitter, res, wallet.DIDAssertion); err != nil {
		return nil, s.fail(err)
	}
	if err := s.persistWallet(ctx, RoleIssuer, wallet); err != nil {
		return nil, err
	}
	if err := s.persistDID(ctx, RoleIssuer, res); err != nil {
		return nil, err
	}

	return res, nil
}

// ResolveDID returns the document of didURI.
func (s *Session) ResolveDID(ctx context.Context, didURI string) (*did.Document, error) {
	done, err := s.begin(false)
	if err != nil {
		return nil, err
	}
	defer done()

	return s.dids.Resolve(ctx, didURI)
}

// LookupName returns the name of didURI, or "".
func (s *Session) LookupName(ctx context.Context, didURI string) (string, error) {
	done, err := s.begin(false)
	if err != nil {
		return "", err
	}
	defer done()

	return s.names.Lookup(ctx, didURI)
}

// NameOwner returns the DID owning name, or "".
func (s *Session) NameOwner(ctx context.Context, name string) (string, error) {
	done, err := s.begin(false)
	if err != nil {
		return "", err
	}
	defer done()

	return s.names.Owner(ctx, name)
}

// ReleaseName releases the name of the mnemonic's DID and returns it.
func (s *Session) ReleaseName(ctx context.Context, mnemonic string) (string, error) {
	wallet, err := walletOf(mnemonic)
	if err != nil {
		return "", err
	}

	done, err := s.begin(true)
	if err != nil {
		return "", err
	}
	defer done()

	res, err := s.dids.Load(ctx, wallet)
	if err != nil {
		return "", s.fail(err)
	}
	name := res.Document.Name()
	if err := s.names.Release(ctx, res, s.submitter); err != nil {
		return "", s.fail(err)
	}
	if err := s.persistDID(ctx, RoleHolder, res); err != nil {
		return "", err
	}
	if err := s.forgetName(ctx, name); err != nil {
		return "", err
	}

	return name, nil
}

// IssueCredential issues a credential from the DID of req.IssuerMnemonic,
// which must already have its assertion key set.
func (s *Session) IssueCredential(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	wallet, err := walletOf(req.IssuerMnemonic)
	if err != nil {
		return nil, err
	}

	done, err := s.begin(false)
	if err != nil {
		return nil, err
	}
	defer done()

	issuerDID, err := s.dids.Load(ctx, wallet)
	if err != nil {
		return nil, s.fail(err)
	}
	if issuerDID.Signers.AssertionMethod == nil {
		return nil, s.fail(fmt.Errorf("issuer DID %s has no assertion method", issuerDID.URI()))
	}

	vc, err := s.issuer.Issue(ctx, issuerDID, req.Holder, req.Claims)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.persistCredential(ctx, vc); err != nil {
		return nil, err
	}

	out := &IssueResult{Credential: vc}
	if req.JWT {
		assertion, err := issuerDID.Signers.AssertionMethod.Signer()
		if err != nil {
			return nil, err
		}
		kid := issuerDID.Document.Keys(blockchain.RelationshipAssertionMethod)[0].ID
		if out.JWT, err = vc.ToJWT(assertion, kid); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// VerifyCredential verifies a credential given as JSON-LD or as a JWT and
// returns it.
func (s *Session) VerifyCredential(ctx context.Context, data []byte) (*credential.Credential, error) {
	done, err := s.begin(false)
	if err != nil {
		return nil, err
	}
	defer done()

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		return credential.ParseJWT(ctx, string(data), s.dids)
	}

	vc, err := credential.ParseCredential(data)
	if err != nil {
		return nil, err
	}
	if err := s.issuer.Verify(ctx, vc, s.dids); err != nil {
		return nil, err
	}

	return vc, nil
}

// forgetName drops a released name from the store. Names claimed outside
// this wallet are not stored.
func (s *Session) forgetName(ctx context.Context, name string) error {
	if s.store == nil || name == "" {
		return nil
	}

	err := s.store.DeleteName(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to forget name: %w", err)
	}

	return nil
}

func walletOf(mnemonic string) (*account.Wallet, error) {
	if account.NormalizeMnemonic(mnemonic) == "" {
		return nil, ErrEmptyMnemonic
	}

	return account.NewWallet(mnemonic)
}
