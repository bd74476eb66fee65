package credential

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/go-w3n-wallet/signer"
)

// SigningMethodES256K implements ES256K signing over a SignerProvider.
type SigningMethodES256K struct{}

// ES256K is the ES256K signing method instance.
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod {
		return ES256K
	})
}

// Alg returns the algorithm name.
func (m *SigningMethodES256K) Alg() string {
	return "ES256K"
}

// Sign signs the SHA-256 of signingString. key must be a
// signer.SignerProvider.
func (m *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	s, ok := key.(signer.SignerProvider)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	hash := sha256.Sum256([]byte(signingString))
	sig, err := s.Sign(hash[:])
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}

	return sig[:64], nil
}

// Verify verifies a signature. key must be a compressed public key.
func (m *SigningMethodES256K) Verify(signingString string, signature []byte, key interface{}) error {
	pub, ok := key.([]byte)
	if !ok {
		return jwt.ErrInvalidKeyType
	}

	hash := sha256.Sum256([]byte(signingString))
	valid, err := verifySignature(pub, signature, hash[:])
	if err != nil {
		return err
	}
	if !valid {
		return jwt.ErrSignatureInvalid
	}

	return nil
}

// Claims are the JWT claims of a credential.
type Claims struct {
	jwt.RegisteredClaims
	VC Credential `json:"vc"`
}

// ToJWT encodes the credential as an ES256K JWT signed by s. kid names the
// issuer's verification method.
func (c *Credential) ToJWT(s signer.SignerProvider, kid string) (string, error) {
	if s == nil {
		return "", errors.New("signer is required")
	}
	if !strings.HasPrefix(kid, c.Issuer()+"#") {
		return "", fmt.Errorf("key %s does not belong to issuer %s", kid, c.Issuer())
	}

	vc := make(Credential, len(*c))
	for k, v := range *c {
		if k != "proof" {
			vc[k] = v
		}
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  c.Issuer(),
			Subject: c.Holder(),
			ID:      c.ID(),
		},
		VC: vc,
	}
	if issued, err := time.Parse(time.RFC3339, c.IssuanceDate()); err == nil {
		claims.NotBefore = jwt.NewNumericDate(issued)
		claims.IssuedAt = jwt.NewNumericDate(issued)
	}

	token := jwt.NewWithClaims(ES256K, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(s)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ParseJWT verifies a credential JWT against the issuer's assertion keys
// and returns the embedded credential.
func ParseJWT(ctx context.Context, token string, resolver Resolver) (*Credential, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{ES256K.Alg()}))

	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid not found in header")
		}

		issuer, _, _ := strings.Cut(kid, "#")
		if claims.Issuer != issuer {
			return nil, fmt.Errorf("kid %s does not belong to issuer %s", kid, claims.Issuer)
		}

		doc, err := resolver.Resolve(ctx, issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve issuer: %w", err)
		}

		key, err := assertionKey(doc, kid)
		if err != nil {
			return nil, err
		}
		if _, err := crypto.DecompressPubkey(key); err != nil {
			return nil, fmt.Errorf("invalid issuer key: %w", err)
		}

		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid credential JWT: %w", err)
	}

	if claims.VC.Issuer() != claims.Issuer {
		return nil, fmt.Errorf("credential issuer %s does not match token issuer %s", claims.VC.Issuer(), claims.Issuer)
	}

	return &claims.VC, nil
}
