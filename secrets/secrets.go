// Package secrets supplies signing-key material and telco client credentials
// through pluggable providers. Providers are load-once-then-read-only; the
// registry of provider kinds is closed and populated explicitly at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// JWTEncryption is the signing configuration handed to the token signer:
// key material, algorithm, and the lifetime stamped into minted tokens.
// For asymmetric algorithms Key holds the private key PEM and PublicKey the
// optional public half (derivable from the private key when absent).
type JWTEncryption struct {
	Key       string
	Algo      string
	Lifetime  time.Duration
	PublicKey string
	KeyID     string
}

// DefaultKeyID is used in token headers and the published JWKS when the
// configuration carries no key id.
const DefaultKeyID = "default_key_id"

// Symmetric reports whether the algorithm uses a shared secret (HS family).
func (e JWTEncryption) Symmetric() bool { return strings.HasPrefix(e.Algo, "HS") }

// SigningKeyID returns the key id stamped into minted tokens, falling back
// to DefaultKeyID.
func (e JWTEncryption) SigningKeyID() string {
	if e.KeyID != "" {
		return e.KeyID
	}
	return DefaultKeyID
}

// ClientCredentials are the backend client id/secret pair a telco accepts.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ErrNotLoaded indicates provider data was requested before Load succeeded.
var ErrNotLoaded = errors.New("secrets: provider not loaded")

// Provider is the secret source contract. Load failures must surface to the
// caller; they are fatal at startup.
type Provider interface {
	Load(ctx context.Context) error
	JWTEncryptionKey() (JWTEncryption, error)
	TelcoAuth() (ClientCredentials, error)
}

// ProviderKind discriminates secret sources.
type ProviderKind string

// KindEnvironment sources secrets from process environment variables.
const KindEnvironment ProviderKind = "environment"

// ProviderConstructor builds a Provider from its own configuration.
type ProviderConstructor func() (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[ProviderKind]ProviderConstructor{}
)

// RegisterProvider adds a constructor to the closed registry. Called
// explicitly during startup wiring.
func RegisterProvider(kind ProviderKind, ctor ProviderConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = ctor
}

// NewProvider constructs the provider registered under kind.
func NewProvider(kind ProviderKind) (Provider, error) {
	registryMu.RLock()
	ctor, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("secrets: unknown provider kind %q", kind)
	}
	return ctor()
}

// NormalizePEM rewrites literal backslash-n sequences into real newlines.
// Key material transported through environment variables commonly arrives
// with escaped line breaks that PEM parsers reject.
func NormalizePEM(pem string) string {
	return strings.ReplaceAll(pem, `\n`, "\n")
}
