package blockchain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

// Action names a DID-authorized registry call.
type Action string

// Action constants.
const (
	ActionCreateDID             Action = "CREATE_DID"
	ActionSetVerificationMethod Action = "SET_VM"
	ActionClaimName             Action = "CLAIM_W3N"
	ActionReleaseName           Action = "RELEASE_W3N"
	ActionAddCType              Action = "ADD_CTYPE"
)

// SolidityPacked implements Solidity's abi.encodePacked for the types used by
// authorization payloads: string, bytes, address, bytes32, uint8, uint64 and uint256.
func SolidityPacked(typeNames []string, values []any) ([]byte, error) {
	if len(typeNames) != len(values) {
		return nil, fmt.Errorf("types and values length mismatch")
	}

	var result []byte
	for i, typeName := range typeNames {
		typ, err := abi.NewType(typeName, "", nil)
		if err != nil {
			return nil, fmt.Errorf("invalid type %s: %w", typeName, err)
		}

		encoded, err := packValue(typ, values[i])
		if err != nil {
			return nil, fmt.Errorf("failed to pack %s at %d: %w", typeName, i, err)
		}
		result = append(result, encoded...)
	}

	return result, nil
}

func packValue(typ abi.Type, value any) ([]byte, error) {
	switch typ.T {
	case abi.StringTy:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return []byte(s), nil

	case abi.BytesTy:
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", value)
		}
		return b, nil

	case abi.AddressTy:
		addr, ok := value.(common.Address)
		if !ok {
			return nil, fmt.Errorf("expected common.Address, got %T", value)
		}
		return addr.Bytes(), nil

	case abi.FixedBytesTy:
		h, ok := value.(common.Hash)
		if !ok || typ.Size != common.HashLength {
			return nil, fmt.Errorf("expected common.Hash for bytes%d, got %T", typ.Size, value)
		}
		return h.Bytes(), nil

	case abi.UintTy:
		var n *big.Int
		switch v := value.(type) {
		case uint8:
			n = new(big.Int).SetUint64(uint64(v))
		case uint64:
			n = new(big.Int).SetUint64(v)
		case *big.Int:
			n = v
		default:
			return nil, fmt.Errorf("expected unsigned integer, got %T", value)
		}
		if n.Sign() < 0 || n.BitLen() > typ.Size {
			return nil, fmt.Errorf("value %s overflows uint%d", n, typ.Size)
		}
		out := make([]byte, typ.Size/8)
		n.FillBytes(out)
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported type: %s", typ.String())
	}
}

// CreateEIP191Payload prefixes data with the EIP-191 version 0 header:
// concat(0x1900, contractAddress, data).
func CreateEIP191Payload(contract common.Address, data []byte) []byte {
	payload := make([]byte, 0, 2+common.AddressLength+len(data))
	payload = append(payload, 0x19, 0x00)
	payload = append(payload, contract.Bytes()...)

	return append(payload, data...)
}

// AuthorizationPayload builds the payload a DID key signs to authorize action.
func AuthorizationPayload(contract common.Address, action Action, did, submitter common.Address, argsHash common.Hash, nonce uint64) ([]byte, error) {
	packed, err := SolidityPacked(
		[]string{"string", "address", "address", "bytes32", "uint256"},
		[]any{string(action), did, submitter, argsHash, new(big.Int).SetUint64(nonce)},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack authorization: %w", err)
	}

	return CreateEIP191Payload(contract, packed), nil
}

// CreateDIDArgsHash binds the authentication key and document hash.
func CreateDIDArgsHash(authKey []byte, docHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(authKey, docHash.Bytes())
}

// SetVerificationMethodArgsHash binds the relationship, key and document hash.
func SetVerificationMethodArgsHash(rel Relationship, key []byte, docHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{byte(rel)}, key, docHash.Bytes())
}

// NameArgsHash binds a Web3 Name.
func NameArgsHash(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// SignAuthorization signs Keccak256(payload) with s. V is normalised to 27 or 28.
func SignAuthorization(s signer.SignerProvider, payload []byte) (*Signature, error) {
	hash := crypto.Keccak256(payload)

	sig, err := s.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return BytesToSignature(sig)
}

// BytesToSignature splits a 65-byte signature, normalising V to 27 or 28.
func BytesToSignature(sig []byte) (*Signature, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(sig))
	}

	out := &Signature{V: sig[64]}
	if out.V < 27 {
		out.V += 27
	}
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])

	return out, nil
}

// Bytes joins the signature back into [R || S || V] with V in {0, 1}.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	if out[64] >= 27 {
		out[64] -= 27
	}

	return out
}

// RecoverAuthorizer returns the address that signed an authorization payload.
func RecoverAuthorizer(payload []byte, sig *Signature) (common.Address, error) {
	if sig == nil {
		return common.Address{}, fmt.Errorf("signature is required")
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// AddressFromKey derives the address of a compressed or uncompressed public key.
func AddressFromKey(key []byte) (common.Address, error) {
	switch {
	case len(key) == 33:
		pub, err := crypto.DecompressPubkey(key)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to decompress public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	case len(key) == 65:
		pub, err := crypto.UnmarshalPubkey(key)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	default:
		return common.Address{}, fmt.Errorf("unsupported public key length %d", len(key))
	}
}

// FormatBalance renders a base-unit amount with the given number of decimals,
// trimming trailing zeros: 1500000000000000000 with 18 decimals is "1.5".
func FormatBalance(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	if decimals <= 0 {
		return amount.String()
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))

	out := whole.String()
	if frac.Sign() != 0 {
		fracStr := frac.String()
		fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
		out += "." + strings.TrimRight(fracStr, "0")
	}
	if neg {
		out = "-" + out
	}

	return out
}

// TxFromHex decodes an RLP hex transaction.
func TxFromHex(rawTxHex string) (*types.Transaction, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(rawTxHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex string: %w", err)
	}

	var tx types.Transaction
	if err := rlp.DecodeBytes(b, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode RLP: %w", err)
	}

	return &tx, nil
}

func serializeTx(tx *types.Transaction) (*TxResult, error) {
	var buf bytes.Buffer
	if err := rlp.Encode(&buf, tx); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &TxResult{
		Status: TxStatusSigned,
		TxHash: tx.Hash().Hex(),
		RawTx:  hex.EncodeToString(buf.Bytes()),
	}, nil
}
