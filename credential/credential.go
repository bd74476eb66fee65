// Package credential issues and verifies Web3 Name credentials.
//
// Credentials are W3C verifiable credentials over a CType. They carry a
// DataIntegrityProof (ecdsa-rdfc-2019) made with the issuer DID's assertion
// key, or travel as ES256K JWTs.
package credential

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/did"
	"github.com/pilacorp/go-w3n-wallet/signer"
)

// Credential terms.
const (
	VCContextV1        = "https://www.w3.org/2018/credentials/v1"
	TypeCredential     = "VerifiableCredential"
	ProofType          = "DataIntegrityProof"
	ProofCryptosuite   = "ecdsa-rdfc-2019"
	ProofPurpose       = "assertionMethod"
	CredentialIDPrefix = "kilt:cred:"
)

var (
	// ErrNoProof is returned when verifying a credential without a proof.
	ErrNoProof = errors.New("credential has no proof")
	// ErrInvalidProof is returned when a proof does not verify.
	ErrInvalidProof = errors.New("invalid credential proof")
)

// Resolver resolves DID documents.
type Resolver interface {
	Resolve(ctx context.Context, didURI string) (*did.Document, error)
}

// Credential is a verifiable credential as a JSON object.
type Credential map[string]any

// Proof is a data integrity proof.
type Proof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite,omitempty"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

// ParseCredential decodes a credential from JSON.
func ParseCredential(data []byte) (*Credential, error) {
	if len(data) == 0 {
		return nil, errors.New("JSON string is empty")
	}

	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	for _, key := range []string{"id", "issuer", "credentialSubject"} {
		if _, ok := c[key]; !ok {
			return nil, fmt.Errorf("%s is required", key)
		}
	}
	if _, ok := c["credentialSubject"].(map[string]any); !ok {
		return nil, errors.New("credentialSubject must be an object")
	}

	return &c, nil
}

// ToJSON serializes the credential.
func (c *Credential) ToJSON() ([]byte, error) {
	if c == nil {
		return nil, errors.New("credential is nil")
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential: %w", err)
	}

	return data, nil
}

// ID returns the credential ID.
func (c *Credential) ID() string {
	return c.stringField("id")
}

// Issuer returns the issuer DID.
func (c *Credential) Issuer() string {
	return c.stringField("issuer")
}

// IssuanceDate returns the issuance date string.
func (c *Credential) IssuanceDate() string {
	return c.stringField("issuanceDate")
}

// CTypeHash returns the hash of the credential's CType.
func (c *Credential) CTypeHash() string {
	return c.stringField("cTypeHash")
}

// Subject returns the credential subject, including its id.
func (c *Credential) Subject() map[string]any {
	if c == nil {
		return nil
	}
	subject, _ := (*c)["credentialSubject"].(map[string]any)
	return subject
}

// Holder returns the subject DID.
func (c *Credential) Holder() string {
	id, _ := c.Subject()["id"].(string)
	return id
}

func (c *Credential) stringField(key string) string {
	if c == nil {
		return ""
	}
	s, _ := (*c)[key].(string)
	return s
}

// Proof returns the credential's first proof.
func (c *Credential) Proof() (*Proof, error) {
	if c == nil {
		return nil, ErrNoProof
	}

	raw, ok := (*c)["proof"]
	if !ok || raw == nil {
		return nil, ErrNoProof
	}
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return nil, ErrNoProof
		}
		raw = list[0]
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proof: %w", err)
	}

	var p Proof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid proof format: %w", err)
	}

	return &p, nil
}

// Canonicalize canonicalizes the credential for signing or verification,
// excluding the proof field.
func (c *Credential) Canonicalize(opts ...ProcessorOpt) ([]byte, error) {
	doc := make(map[string]any, len(*c))
	for k, v := range *c {
		if k != "proof" {
			doc[k] = v
		}
	}

	// Round trip through JSON so typed Go values become generic JSON values.
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return CanonicalizeDocument(generic, opts...)
}

// AddProof signs the credential with s and attaches a data integrity proof
// referencing verificationMethod.
func (c *Credential) AddProof(s signer.SignerProvider, verificationMethod, created string, opts ...ProcessorOpt) error {
	if s == nil {
		return errors.New("signer is required")
	}
	if verificationMethod == "" {
		return errors.New("verification method is required")
	}

	signData, err := c.Canonicalize(opts...)
	if err != nil {
		return fmt.Errorf("failed to canonicalize credential: %w", err)
	}

	signature, err := s.Sign(ComputeDigest(signData))
	if err != nil {
		return fmt.Errorf("failed to sign ECDSA proof: %w", err)
	}

	(*c)["proof"] = map[string]any{
		"type":               ProofType,
		"cryptosuite":        ProofCryptosuite,
		"created":            created,
		"verificationMethod": verificationMethod,
		"proofPurpose":       ProofPurpose,
		"proofValue":         hex.EncodeToString(signature),
	}

	return nil
}

// Verify checks the proof against the issuer's assertion keys as resolved
// by resolver.
func (c *Credential) Verify(ctx context.Context, resolver Resolver, opts ...ProcessorOpt) error {
	proof, err := c.Proof()
	if err != nil {
		return err
	}
	if proof.Type != ProofType || proof.Cryptosuite != ProofCryptosuite {
		return fmt.Errorf("%w: unsupported proof %s/%s", ErrInvalidProof, proof.Type, proof.Cryptosuite)
	}

	issuer := c.Issuer()
	if issuer == "" {
		return errors.New("credential has no issuer")
	}
	if !strings.HasPrefix(proof.VerificationMethod, issuer+"#") {
		return fmt.Errorf("%w: verification method %s does not belong to issuer %s", ErrInvalidProof, proof.VerificationMethod, issuer)
	}

	doc, err := resolver.Resolve(ctx, issuer)
	if err != nil {
		return fmt.Errorf("failed to resolve issuer: %w", err)
	}

	key, err := assertionKey(doc, proof.VerificationMethod)
	if err != nil {
		return err
	}

	data, err := c.Canonicalize(opts...)
	if err != nil {
		return fmt.Errorf("failed to canonicalize credential: %w", err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(proof.ProofValue, "0x"))
	if err != nil {
		return fmt.Errorf("%w: failed to decode proof value: %v", ErrInvalidProof, err)
	}

	ok, err := verifySignature(key, sig, ComputeDigest(data))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidProof
	}

	return nil
}

// assertionKey returns the compressed key of vmID if the document lists it
// as an assertion method.
func assertionKey(doc *did.Document, vmID string) ([]byte, error) {
	for _, vm := range doc.Keys(blockchain.RelationshipAssertionMethod) {
		if vm.ID == vmID {
			return vm.PublicKey()
		}
	}

	return nil, fmt.Errorf("%w: %s is not an assertion method of %s", ErrInvalidProof, vmID, doc.ID)
}

// verifySignature checks a 64 or 65 byte [R || S || V] signature over hash.
func verifySignature(pubKey, sig, hash []byte) (bool, error) {
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false, fmt.Errorf("failed to parse public key: %w", err)
	}

	if len(sig) == 65 {
		sig = sig[:64]
	}
	if len(sig) != 64 {
		return false, fmt.Errorf("%w: signature length %d", ErrInvalidProof, len(sig))
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false, fmt.Errorf("%w: R overflows", ErrInvalidProof)
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false, fmt.Errorf("%w: S overflows", ErrInvalidProof)
	}

	return ecdsa.NewSignature(&r, &s).Verify(hash, pub), nil
}
