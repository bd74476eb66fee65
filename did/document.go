package did

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/internal/canonical"
)

// Verification method key IDs, relative to the DID.
const (
	AuthenticationKeyID = "#key-1"
	AssertionKeyID      = "#key-2"
)

// VerificationKeyType is the verification method type of secp256k1 keys.
const VerificationKeyType = "EcdsaSecp256k1VerificationKey2019"

// W3NPrefix prefixes Web3 Names listed in alsoKnownAs.
const W3NPrefix = "w3n:"

var documentContext = []string{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/suites/secp256k1-2019/v1",
}

// Document is the DID document.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
	AlsoKnownAs        []string             `json:"alsoKnownAs,omitempty"`
}

// VerificationMethod is a verification method of the DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyHex       string `json:"publicKeyHex"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// NewDocument builds the document of id from its compressed public keys.
// A nil assertionKey leaves assertionMethod empty.
func NewDocument(id string, authKey, assertionKey []byte) *Document {
	doc := &Document{
		Context:        slices.Clone(documentContext),
		ID:             id,
		Authentication: []string{id + AuthenticationKeyID},
	}
	doc.VerificationMethod = append(doc.VerificationMethod, newVerificationMethod(id, AuthenticationKeyID, authKey))

	if len(assertionKey) > 0 {
		doc.VerificationMethod = append(doc.VerificationMethod, newVerificationMethod(id, AssertionKeyID, assertionKey))
		doc.AssertionMethod = []string{id + AssertionKeyID}
	}

	return doc
}

func newVerificationMethod(id, keyID string, key []byte) VerificationMethod {
	return VerificationMethod{
		ID:                 id + keyID,
		Type:               VerificationKeyType,
		Controller:         id,
		PublicKeyHex:       "0x" + hex.EncodeToString(key),
		PublicKeyMultibase: account.EncodeMultibase(key),
	}
}

// Hash calculates the Keccak256 hash of the canonical document.
//
// alsoKnownAs is excluded: names are linked by the name registry and do not
// change the anchored document.
func (doc *Document) Hash() (common.Hash, error) {
	hashed := *doc
	hashed.AlsoKnownAs = nil

	data, err := canonical.JSON(&hashed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to canonicalize DID document: %w", err)
	}

	return crypto.Keccak256Hash(data), nil
}

// Clone returns a deep copy of the document.
func (doc *Document) Clone() *Document {
	if doc == nil {
		return nil
	}

	return &Document{
		Context:            slices.Clone(doc.Context),
		ID:                 doc.ID,
		VerificationMethod: slices.Clone(doc.VerificationMethod),
		Authentication:     slices.Clone(doc.Authentication),
		AssertionMethod:    slices.Clone(doc.AssertionMethod),
		AlsoKnownAs:        slices.Clone(doc.AlsoKnownAs),
	}
}

// Address returns the account address of the DID.
func (doc *Document) Address() (common.Address, error) {
	return AddressFromDID(doc.ID, "")
}

// VerificationMethodByID looks up a verification method by its full or
// relative ID.
func (doc *Document) VerificationMethodByID(id string) (*VerificationMethod, bool) {
	if strings.HasPrefix(id, "#") {
		id = doc.ID + id
	}

	for i := range doc.VerificationMethod {
		if doc.VerificationMethod[i].ID == id {
			return &doc.VerificationMethod[i], true
		}
	}

	return nil, false
}

// Keys returns the verification methods referenced by rel.
func (doc *Document) Keys(rel blockchain.Relationship) []VerificationMethod {
	refs := doc.Authentication
	if rel == blockchain.RelationshipAssertionMethod {
		refs = doc.AssertionMethod
	}

	var out []VerificationMethod
	for _, ref := range refs {
		if vm, ok := doc.VerificationMethodByID(ref); ok {
			out = append(out, *vm)
		}
	}

	return out
}

// HasAssertionMethod reports whether the document lists an assertion key.
func (doc *Document) HasAssertionMethod() bool {
	return len(doc.Keys(blockchain.RelationshipAssertionMethod)) > 0
}

// Name returns the first Web3 Name in alsoKnownAs, without its prefix.
func (doc *Document) Name() string {
	for _, aka := range doc.AlsoKnownAs {
		if name, ok := strings.CutPrefix(aka, W3NPrefix); ok {
			return name
		}
	}

	return ""
}

// PublicKey decodes the method's compressed public key.
func (vm *VerificationMethod) PublicKey() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(vm.PublicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid publicKeyHex of %s: %w", vm.ID, err)
	}

	return key, nil
}

// Address returns the account address of the method's key.
func (vm *VerificationMethod) Address() (common.Address, error) {
	key, err := vm.PublicKey()
	if err != nil {
		return common.Address{}, err
	}

	return blockchain.AddressFromKey(key)
}
