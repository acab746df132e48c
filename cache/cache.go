// Package cache defines the optional token cache contract. Backends memoize
// issued tokens under (key type, telecom identifier) keys with TTLs derived
// from the token lifetime; entries expire on their own and are never
// explicitly deleted by the pipelines.
package cache

import (
	"context"
	"time"

	"github.com/opentelco/tokenbroker/oauth"
)

// KeyType partitions cached tokens by who minted them.
type KeyType string

const (
	// KeyBrokerToken caches tokens minted by the broker itself.
	KeyBrokerToken KeyType = "broker_token"
	// KeyTelecomToken caches tokens returned by telco backends.
	KeyTelecomToken KeyType = "telecom_token"
)

// JWKSKey caches the published JWKS document.
const JWKSKey = "jwks:public"

// JWKSTTL is how long the JWKS document stays cached.
const JWKSTTL = 24 * time.Hour

// Cache is a key-value store with per-key TTL. Get returns (nil, nil) on a
// miss; callers treat read errors as misses (fail open) and must never let a
// write failure surface on a response path.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key builds the cache key for a token type and telecom identifier:
// "<type>_<mcc>_<sn>".
func Key(kt KeyType, id oauth.TelecomIdentifier) string {
	return string(kt) + "_" + id.MCC() + "_" + id.SN()
}
