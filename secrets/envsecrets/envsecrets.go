// Package envsecrets implements the environment-variable secret provider.
package envsecrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/opentelco/tokenbroker/secrets"
)

// Config describes the environment surface of the provider.
type Config struct {
	// Algo is the JWT signing algorithm, e.g. HS256 or RS256. ENV: JWT_ALGO
	Algo string `env:"JWT_ALGO,required"`
	// Key is the signing key: shared secret (HS*) or private key PEM (RS*).
	// ENV: JWT_KEY
	Key string `env:"JWT_KEY,required"`
	// ExpSec is the token lifetime in seconds. ENV: JWT_EXP_SEC
	ExpSec int `env:"JWT_EXP_SEC,required"`
	// PublicKey optionally carries the public key PEM for RS*. ENV: JWT_PUBLIC_KEY
	PublicKey string `env:"JWT_PUBLIC_KEY,default="`
	// KeyID is the kid advertised in the JWKS. ENV: JWT_KID
	KeyID string `env:"JWT_KID,default="`

	// Telco client credentials embedded in forwarded token requests.
	// ENV: TELECOM_AUTH_CLIENT_ID / TELECOM_AUTH_CLIENT_SECRET
	ClientID     string `env:"TELECOM_AUTH_CLIENT_ID,default="`
	ClientSecret string `env:"TELECOM_AUTH_CLIENT_SECRET,default="`
}

// Provider loads secrets from environment variables once and serves them
// read-only afterwards.
type Provider struct {
	mu     sync.RWMutex
	loaded bool
	enc    secrets.JWTEncryption
	auth   secrets.ClientCredentials
}

// New returns an unloaded environment provider.
func New() *Provider { return &Provider{} }

// Load decodes the environment. Missing required variables are an error.
func (p *Provider) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return fmt.Errorf("envsecrets: %w", err)
	}
	if cfg.ExpSec <= 0 {
		return fmt.Errorf("envsecrets: JWT_EXP_SEC must be positive, got %d", cfg.ExpSec)
	}
	p.enc = secrets.JWTEncryption{
		Key:       secrets.NormalizePEM(cfg.Key),
		Algo:      cfg.Algo,
		Lifetime:  time.Duration(cfg.ExpSec) * time.Second,
		PublicKey: secrets.NormalizePEM(cfg.PublicKey),
		KeyID:     cfg.KeyID,
	}
	p.auth = secrets.ClientCredentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	p.loaded = true
	return nil
}

// JWTEncryptionKey returns the loaded signing configuration.
func (p *Provider) JWTEncryptionKey() (secrets.JWTEncryption, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return secrets.JWTEncryption{}, secrets.ErrNotLoaded
	}
	return p.enc, nil
}

// TelcoAuth returns the loaded telco client credentials.
func (p *Provider) TelcoAuth() (secrets.ClientCredentials, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return secrets.ClientCredentials{}, secrets.ErrNotLoaded
	}
	return p.auth, nil
}

var _ secrets.Provider = (*Provider)(nil)
