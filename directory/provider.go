package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Resolver is the lookup contract the broker pipeline depends on. *Store
// satisfies it.
type Resolver interface {
	Resolve(mcc, sn string) (Record, error)
}

// Provider loads directory data from a backing source into a Store. Load is
// idempotent; Reload forces a fresh read even when already loaded. Source
// failures (missing file, malformed data, schema mismatch) are returned to
// the caller, never swallowed.
type Provider interface {
	Load(ctx context.Context) error
	Reload(ctx context.Context) error
	Store() *Store
}

// ProviderKind discriminates directory backing sources.
type ProviderKind string

// KindYAML is the file-based provider shipped with this deployment. Other
// sources implement the same Provider contract under their own kind.
const KindYAML ProviderKind = "yaml"

// ProviderConstructor builds a Provider from its own (typically
// environment-sourced) configuration.
type ProviderConstructor func() (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[ProviderKind]ProviderConstructor{}
)

// RegisterProvider adds a constructor to the closed provider registry. It is
// called explicitly during process startup; there is no side-effect
// registration.
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
		return nil, fmt.Errorf("directory: unknown provider kind %q (known: %v)", kind, registeredKinds())
	}
	return ctor()
}

func registeredKinds() []ProviderKind {
	kinds := make([]ProviderKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
