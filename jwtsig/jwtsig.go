// Package jwtsig is the stateless token signer: it stamps iat/exp into a
// claim set, signs it with the configured key material, and verifies tokens
// back into claims with a small, explicit error taxonomy.
package jwtsig

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opentelco/tokenbroker/secrets"
)

// SignedToken is a freshly minted token with its timestamps. ExpiresAt minus
// IssuedAt always equals the configured lifetime exactly.
type SignedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

var (
	// ErrExpired indicates the token's exp claim has passed.
	ErrExpired = errors.New("jwtsig: token expired")
	// ErrInvalidSignature indicates the signature does not verify.
	ErrInvalidSignature = errors.New("jwtsig: invalid signature")
	// ErrMalformed indicates the token is not a parseable JWT.
	ErrMalformed = errors.New("jwtsig: malformed token")
	// ErrUnsupportedAlgorithm indicates an algorithm outside the HS/RS families.
	ErrUnsupportedAlgorithm = errors.New("jwtsig: unsupported algorithm")
)

// Sign stamps iat=now and exp=iat+lifetime into a copy of claims and signs
// the result with the configured key and algorithm.
func Sign(claims map[string]any, enc secrets.JWTEncryption) (SignedToken, error) {
	method := jwt.GetSigningMethod(enc.Algo)
	if method == nil {
		return SignedToken{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, enc.Algo)
	}
	key, err := signingKey(enc)
	if err != nil {
		return SignedToken{}, err
	}

	issuedAt := time.Now().Truncate(time.Second)
	expiresAt := issuedAt.Add(enc.Lifetime)

	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = issuedAt.Unix()
	payload["exp"] = expiresAt.Unix()

	t := jwt.NewWithClaims(method, payload)
	t.Header["kid"] = enc.SigningKeyID()
	tok, err := t.SignedString(key)
	if err != nil {
		return SignedToken{}, fmt.Errorf("jwtsig: sign: %w", err)
	}
	return SignedToken{Token: tok, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates a token, returning its claims. Failures map to
// ErrExpired, ErrInvalidSignature, or ErrMalformed.
func Verify(token string, enc secrets.JWTEncryption) (jwt.MapClaims, error) {
	key, err := verificationKey(enc)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{enc.Algo}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.Parse(token, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}
	return claims, nil
}

// PublicKey returns the RSA public key for an asymmetric configuration:
// the supplied public key PEM when present, otherwise the public half derived
// from the private key.
func PublicKey(enc secrets.JWTEncryption) (*rsa.PublicKey, error) {
	if enc.Symmetric() {
		return nil, fmt.Errorf("%w: %s has no public key", ErrUnsupportedAlgorithm, enc.Algo)
	}
	if enc.PublicKey != "" {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(secrets.NormalizePEM(enc.PublicKey)))
		if err != nil {
			return nil, fmt.Errorf("jwtsig: parse public key: %w", err)
		}
		return pub, nil
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(secrets.NormalizePEM(enc.Key)))
	if err != nil {
		return nil, fmt.Errorf("jwtsig: derive public key: %w", err)
	}
	return &priv.PublicKey, nil
}

func signingKey(enc secrets.JWTEncryption) (any, error) {
	switch {
	case strings.HasPrefix(enc.Algo, "HS"):
		return []byte(enc.Key), nil
	case strings.HasPrefix(enc.Algo, "RS"):
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(secrets.NormalizePEM(enc.Key)))
		if err != nil {
			return nil, fmt.Errorf("jwtsig: parse private key: %w", err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, enc.Algo)
	}
}

func verificationKey(enc secrets.JWTEncryption) (any, error) {
	if enc.Symmetric() {
		return []byte(enc.Key), nil
	}
	if strings.HasPrefix(enc.Algo, "RS") {
		return PublicKey(enc)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, enc.Algo)
}
