package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/credential"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/store"
	"github.com/pilacorp/go-w3n-wallet/w3n"
)

// Roles stored with DIDs and account labels.
const (
	RoleIssuer = "issuer"
	RoleHolder = "holder"
)

// ClaimResult is the outcome of a claim flow.
type ClaimResult struct {
	Issuer      *account.Wallet
	Holder      *account.Wallet
	HolderDID   *did.Result
	IssuerDID   *did.Result
	AlsoKnownAs []string
	Credential  *credential.Credential
}

// ImportResult is the outcome of importing a mnemonic.
type ImportResult struct {
	Address     string
	HasActivity bool
}

// OverviewResult describes the address, DID and name of a mnemonic.
type OverviewResult struct {
	Address string
	DIDURI  string
	// DID is nil when the DID is not anchored.
	DID *did.Document
	// Name is "" when the DID has no name.
	Name        string
	Balance     *big.Int
	BalanceText string
}

// ClaimFlow generates fresh issuer and holder accounts, anchors a holder
// DID, claims name for it and issues a credential from a new issuer DID.
func (s *Session) ClaimFlow(ctx context.Context, name string) (*ClaimResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	done, err := s.begin(true)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := s.claimFlow(ctx, name)
	if err != nil {
		return nil, s.fail(err)
	}

	return res, nil
}

func (s *Session) claimFlow(ctx context.Context, name string) (*ClaimResult, error) {
	s.logger.Info("Starting W3N claim process...")

	name, err := w3n.ValidateName(name)
	if err != nil {
		return nil, err
	}

	info, err := s.queryAccount(ctx, common.HexToAddress(s.submitter.GetAddress()))
	if err != nil {
		return nil, fmt.Errorf("failed to query submitter balance: %w", err)
	}
	s.logger.Info("Submitter address: " + s.submitter.GetAddress())
	s.logger.Info(fmt.Sprintf("Submitter balance: %s (%s)", info.Free.String(), s.formatBalance(info.Free)))

	s.logger.Info("Generating accounts with mnemonics...")
	accounts, err := account.GenerateAccounts(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ISSUER_ACCOUNT_ADDRESS=" + accounts.Issuer.Address())
	s.logger.Info("HOLDER_ACCOUNT_ADDRESS=" + accounts.Holder.Address())

	s.logger.Info("Generating holder DID...")
	holderDID, err := s.dids.Create(ctx, s.submitter, accounts.Holder.DIDAuth)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Holder DID: " + holderDID.URI())

	s.logger.Info("Claiming W3N: " + name)
	aka, err := s.names.Claim(ctx, name, holderDID, s.submitter)
	if err != nil {
		return nil, err
	}
	s.logger.Info("W3N claimed successfully: " + name)

	issuerDID, vc, err := s.issueFromNewIssuer(ctx, accounts.Issuer, holderDID.URI(), name)
	if err != nil {
		return nil, err
	}

	if err := s.persistWallet(ctx, RoleIssuer, accounts.Issuer); err != nil {
		return nil, err
	}
	if err := s.persistWallet(ctx, RoleHolder, accounts.Holder); err != nil {
		return nil, err
	}
	if err := s.persistClaim(ctx, issuerDID, holderDID, name, vc); err != nil {
		return nil, err
	}

	s.logger.Info("Process completed successfully!")
	s.logger.Info("Credential ID: " + vc.ID())

	return &ClaimResult{
		Issuer:      accounts.Issuer,
		Holder:      accounts.Holder,
		HolderDID:   holderDID,
		IssuerDID:   issuerDID,
		AlsoKnownAs: aka,
		Credential:  vc,
	}, nil
}

// issueFromNewIssuer anchors an issuer DID for wallet, sets its assertion
// key and issues a Username credential to holderDID.
func (s *Session) issueFromNewIssuer(ctx context.Context, wallet *account.Wallet, holderDID, name string) (*did.Result, *credential.Credential, error) {
	s.logger.Info("Generating issuer DID...")
	issuerDID, err := s.dids.Create(ctx, s.submitter, wallet.DIDAuth)
	if err != nil {
		return nil, nil, err
	}
	if err := s.dids.AddAssertionMethod(ctx, s.submitter, issuerDID, wallet.DIDAssertion); err != nil {
		return nil, nil, err
	}

	s.logger.Info("Verifying DID...")
	doc, err := s.dids.Resolve(ctx, issuerDID.URI())
	if err != nil {
		return nil, nil, err
	}
	if !doc.HasAssertionMethod() {
		return nil, nil, fmt.Errorf("issuer DID %s has no assertion method", doc.ID)
	}

	s.logger.Info("Issuing credential...")
	vc, err := s.issuer.Issue(ctx, issuerDID, holderDID, map[string]any{"Username": name})
	if err != nil {
		return nil, nil, err
	}

	return issuerDID, vc, nil
}

// ImportWallet derives the address of mnemonic and reports whether it has
// been used on chain.
func (s *Session) ImportWallet(ctx context.Context, mnemonic string) (*ImportResult, error) {
	if strings.TrimSpace(mnemonic) == "" {
		return nil, ErrEmptyMnemonic
	}

	done, err := s.begin(false)
	if err != nil {
		return nil, err
	}
	defer done()

	wallet, err := account.NewWallet(mnemonic)
	if err != nil {
		return nil, s.fail(err)
	}

	info, err := s.queryAccount(ctx, common.HexToAddress(wallet.Address()))
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to query account: %w", err))
	}

	if info.HasActivity() {
		s.logger.Info("Address exists with activity", zap.String("address", wallet.Address()))
	} else {
		s.logger.Info("Address exists but has no activity", zap.String("address", wallet.Address()))
	}

	return &ImportResult{Address: wallet.Address(), HasActivity: info.HasActivity()}, nil
}

// Overview resolves the DID, name and balance of mnemonic.
func (s *Session) Overview(ctx context.Context, mnemonic string) (*OverviewResult, error) {
	if strings.TrimSpace(mnemonic) == "" {
		return nil, ErrEmptyMnemonic
	}

	done, err := s.begin(false)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := s.overview(ctx, mnemonic)
	if err != nil {
		return nil, s.fail(err)
	}

	return res, nil
}

func (s *Session) overview(ctx context.Context, mnemonic string) (*OverviewResult, error) {
	wallet, err := account.NewWallet(mnemonic)
	if err != nil {
		return nil, err
	}

	out := &OverviewResult{
		Address: wallet.Address(),
		DIDURI:  s.dids.URI(wallet.DIDAuth),
	}

	s.logger.Info("Retrieving holder DID...")
	s.logger.Info("didUri: " + out.DIDURI)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := s.dids.Resolve(gctx, out.DIDURI)
		if errors.Is(err, did.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.DID = doc
		return nil
	})
	g.Go(func() error {
		info, err := s.queryAccount(gctx, common.HexToAddress(out.Address))
		if err != nil {
			return fmt.Errorf("failed to query balance: %w", err)
		}
		out.Balance = info.Free
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.BalanceText = s.formatBalance(out.Balance)

	if out.DID == nil {
		s.logger.Info("DID not found, skipping W3N check")
		return out, nil
	}
	s.logger.Info("DID document found: " + out.DID.ID)

	s.logger.Info("Checking for Web3 Name...")
	name, err := s.names.Lookup(ctx, out.DIDURI)
	if err != nil {
		return nil, err
	}
	if name == "" {
		s.logger.Info("No W3N found")
	} else {
		s.logger.Info("Found W3N: " + name)
	}
	out.Name = name

	return out, nil
}

// ClaimForMnemonic claims name for the DID of mnemonic, anchoring the DID
// first when needed, and issues a credential from a fresh issuer.
func (s *Session) ClaimForMnemonic(ctx context.Context, mnemonic, name string) (*ClaimResult, error) {
	if strings.TrimSpace(mnemonic) == "" {
		return nil, ErrEmptyMnemonic
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	done, err := s.begin(true)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := s.claimForMnemonic(ctx, mnemonic, name)
	if err != nil {
		return nil, s.fail(err)
	}

	return res, nil
}

func (s *Session) claimForMnemonic(ctx context.Context, mnemonic, name string) (*ClaimResult, error) {
	s.logger.Info("Starting W3N claim...")

	name, err := w3n.ValidateName(name)
	if err != nil {
		return nil, err
	}

	holder, err := account.NewWallet(mnemonic)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Retrieving holder DID...")
	holderDID, err := s.dids.Load(ctx, holder)
	if errors.Is(err, did.ErrNotFound) {
		s.logger.Info("Generating holder DID...")
		holderDID, err = s.dids.Create(ctx, s.submitter, holder.DIDAuth)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Holder DID: " + holderDID.URI())

	aka, err := s.names.Claim(ctx, name, holderDID, s.submitter)
	if err != nil {
		return nil, err
	}
	s.logger.Info("W3N claimed: " + name)

	issuer, err := account.GenerateWallet()
	if err != nil {
		return nil, err
	}
	issuerDID, vc, err := s.issueFromNewIssuer(ctx, issuer, holderDID.URI(), name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Credential issued: " + vc.ID())

	if err := s.persistWallet(ctx, RoleIssuer, issuer); err != nil {
		return nil, err
	}
	if err := s.persistWallet(ctx, RoleHolder, holder); err != nil {
		return nil, err
	}
	if err := s.persistClaim(ctx, issuerDID, holderDID, name, vc); err != nil {
		return nil, err
	}

	return &ClaimResult{
		Issuer:      issuer,
		Holder:      holder,
		HolderDID:   holderDID,
		IssuerDID:   issuerDID,
		AlsoKnownAs: aka,
		Credential:  vc,
	}, nil
}

// persistWallet stores the wallet's keys when a store and a passphrase
// are configured. Keys stored by an earlier flow are kept.
func (s *Session) persistWallet(ctx context.Context, role string, wallet *account.Wallet) error {
	if s.store == nil {
		return nil
	}
	if s.passphrase == "" {
		s.logger.Debug("no passphrase set, account keys not stored", zap.String("role", role))
		return nil
	}

	keys := []struct {
		label string
		kp    *account.KeyPair
	}{
		{role, wallet.Account},
		{role + "-did-authentication", wallet.DIDAuth},
		{role + "-did-assertion", wallet.DIDAssertion},
	}
	for _, k := range keys {
		_, err := s.store.SaveAccount(ctx, k.label, k.kp.PrivateKey, s.passphrase)
		if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("failed to store %s key: %w", k.label, err)
		}
	}

	return nil
}

func (s *Session) persistDID(ctx context.Context, role string, res *did.Result) error {
	if s.store == nil {
		return nil
	}

	doc, err := json.Marshal(res.Document)
	if err != nil {
		return fmt.Errorf("failed to marshal DID document: %w", err)
	}
	if err := s.store.SaveDID(ctx, store.DID{URI: res.URI(), Role: role, Document: doc}); err != nil {
		return fmt.Errorf("failed to store DID: %w", err)
	}

	return nil
}

func (s *Session) persistCredential(ctx context.Context, vc *credential.Credential) error {
	if s.store == nil {
		return nil
	}

	data, err := vc.ToJSON()
	if err != nil {
		return err
	}
	err = s.store.SaveCredential(ctx, store.Credential{
		ID:        vc.ID(),
		Issuer:    vc.Issuer(),
		Holder:    vc.Holder(),
		CTypeHash: vc.CTypeHash(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	return nil
}

func (s *Session) persistClaim(ctx context.Context, issuerDID, holderDID *did.Result, name string, vc *credential.Credential) error {
	if s.store == nil {
		return nil
	}

	if err := s.persistDID(ctx, RoleIssuer, issuerDID); err != nil {
		return err
	}
	if err := s.persistDID(ctx, RoleHolder, holderDID); err != nil {
		return err
	}
	if err := s.store.SaveName(ctx, store.Name{Name: name, DID: holderDID.URI()}); err != nil {
		return fmt.Errorf("failed to store name: %w", err)
	}

	return s.persistCredential(ctx, vc)
}

// accountInfo is used by the single-step operations.
func (s *Session) accountInfo(ctx context.Context, address string) (*blockchain.AccountInfo, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	info, err := s.queryAccount(ctx, common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return info, nil
}
