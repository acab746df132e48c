// Package wellknown builds the documents served under /.well-known: the JSON
// Web Key Set exposing the verification half of the signing configuration.
package wellknown

import (
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/opentelco/tokenbroker/jwtsig"
	"github.com/opentelco/tokenbroker/secrets"
)

// symmetricKey is the metadata-only JWK published for HS* configurations.
// The shared secret itself (the "k" parameter) is deliberately absent.
type symmetricKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// JWKS renders the key set for the given signing configuration. For RS*
// algorithms the RSA public key is published (supplied PEM or derived from
// the private key); private key material never appears in the output. For
// HS* algorithms only non-secret metadata is included.
func JWKS(enc secrets.JWTEncryption) (json.RawMessage, error) {
	kid := enc.SigningKeyID()

	switch {
	case enc.Symmetric():
		return json.Marshal(map[string]any{
			"keys": []symmetricKey{{Kty: "oct", Use: "sig", Alg: enc.Algo, Kid: kid}},
		})
	default:
		pub, err := jwtsig.PublicKey(enc)
		if err != nil {
			return nil, fmt.Errorf("wellknown: %w", err)
		}
		set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       pub,
			KeyID:     kid,
			Algorithm: enc.Algo,
			Use:       "sig",
		}}}
		out, err := json.Marshal(set)
		if err != nil {
			return nil, fmt.Errorf("wellknown: marshal jwks: %w", err)
		}
		return out, nil
	}
}
