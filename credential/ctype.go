package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pilacorp/go-w3n-wallet/internal/canonical"
)

// DefaultCTypeHash is the hash of the CType credentials are issued under.
const DefaultCTypeHash = "0x05f099b888ddf3e8ef4fc690f12ca59d967bf934d58dda723921893cff0d8734"

// CTypeMetaSchema is the $schema of CType definitions.
const CTypeMetaSchema = "ipfs://bafybeiah66wbkhqbqn7idkostj2iqyan2tstc4tpqt65udlhimd7hcxjyq/"

// ErrClaimsInvalid is returned when claims do not match a CType.
var ErrClaimsInvalid = errors.New("claims do not match CType")

// CType is a claim type: a JSON schema for the credential subject.
type CType struct {
	Schema               string              `json:"$schema"`
	SchemaID             string              `json:"$id,omitempty"`
	Title                string              `json:"title"`
	Properties           map[string]Property `json:"properties"`
	Type                 string              `json:"type"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property describes a single claim.
type Property struct {
	Type   string `json:"type,omitempty"`
	Format string `json:"format,omitempty"`
	Ref    string `json:"$ref,omitempty"`
}

// PassportCType returns the CType of a Web3 Name credential.
func PassportCType() *CType {
	return &CType{
		Schema: CTypeMetaSchema,
		Title:  "Username",
		Properties: map[string]Property{
			"Username": {Type: "string"},
		},
		Type:                 "object",
		AdditionalProperties: false,
	}
}

// ParseCType decodes a CType definition.
func ParseCType(data []byte) (*CType, error) {
	var ct CType
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CType: %w", err)
	}
	if ct.Type != "object" {
		return nil, fmt.Errorf("CType type must be \"object\", got %q", ct.Type)
	}
	if len(ct.Properties) == 0 {
		return nil, errors.New("CType has no properties")
	}

	return &ct, nil
}

// Hash returns the Keccak256 hash of the canonical CType without $id.
func (c *CType) Hash() (common.Hash, error) {
	hashed := *c
	hashed.SchemaID = ""

	data, err := canonical.JSON(&hashed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to canonicalize CType: %w", err)
	}

	return crypto.Keccak256Hash(data), nil
}

// ID returns the kilt:ctype URI of the CType.
func (c *CType) ID() (string, error) {
	h, err := c.Hash()
	if err != nil {
		return "", err
	}

	return CTypeID(h), nil
}

// CTypeID formats the URI of a CType hash.
func CTypeID(hash common.Hash) string {
	return "kilt:ctype:" + strings.ToLower(hash.Hex())
}

// Validate checks claims against the CType schema.
func (c *CType) Validate(claims map[string]any) error {
	schema := map[string]any{
		"type":                 c.Type,
		"properties":           c.Properties,
		"additionalProperties": c.AdditionalProperties,
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(claims))
	if err != nil {
		return fmt.Errorf("failed to validate claims: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w %q: %s", ErrClaimsInvalid, c.Title, strings.Join(msgs, "; "))
	}

	return nil
}
