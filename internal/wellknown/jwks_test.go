package wellknown

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/opentelco/tokenbroker/secrets"
)

func rsaEncryption(t *testing.T) secrets.JWTEncryption {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	return secrets.JWTEncryption{Key: string(privPEM), Algo: "RS256", Lifetime: time.Minute, KeyID: "rsa-key-1"}
}

func TestRSAKeySet(t *testing.T) {
	enc := rsaEncryption(t)
	raw, err := JWKS(enc)
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(doc.Keys))
	}
	key := doc.Keys[0]
	if key["kty"] != "RSA" || key["use"] != "sig" || key["alg"] != "RS256" || key["kid"] != "rsa-key-1" {
		t.Errorf("key metadata = %v", key)
	}

	// Modulus and exponent present, base64url without padding.
	for _, field := range []string{"n", "e"} {
		v, _ := key[field].(string)
		if v == "" {
			t.Fatalf("missing %q in RSA JWK", field)
		}
		if strings.ContainsAny(v, "+/=") {
			t.Errorf("%q = %q is not unpadded base64url", field, v)
		}
	}

	// Private key material must never leak.
	for _, forbidden := range []string{"d", "p", "q", "dp", "dq", "qi"} {
		if _, ok := key[forbidden]; ok {
			t.Errorf("private parameter %q present in published JWKS", forbidden)
		}
	}
	if strings.Contains(string(raw), "PRIVATE KEY") {
		t.Error("PEM private key leaked into JWKS")
	}
}

func TestSymmetricKeySet(t *testing.T) {
	enc := secrets.JWTEncryption{Key: "shared-secret-value", Algo: "HS256", Lifetime: time.Minute}
	raw, err := JWKS(enc)
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(doc.Keys))
	}
	key := doc.Keys[0]
	if key["kty"] != "oct" || key["alg"] != "HS256" || key["kid"] != secrets.DefaultKeyID {
		t.Errorf("key metadata = %v", key)
	}
	if _, ok := key["k"]; ok {
		t.Error("shared secret parameter present in published JWKS")
	}
	if strings.Contains(string(raw), "shared-secret-value") {
		t.Error("shared secret value leaked into JWKS")
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	if _, err := JWKS(secrets.JWTEncryption{Key: "k", Algo: "none"}); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
