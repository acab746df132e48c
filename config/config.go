// Package config holds the process-level settings shared by both binaries.
// Component-specific settings (Redis, the YAML directory, environment
// secrets) live next to the components they configure.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/joeshaw/envdecode"

	"github.com/opentelco/tokenbroker/directory"
	"github.com/opentelco/tokenbroker/secrets"
)

// Server configures the HTTP listener and API surface.
type Server struct {
	Name    string `env:"API_NAME,default=tokenbroker"`
	Host    string `env:"API_HOST,default=0.0.0.0"`
	Port    int    `env:"API_PORT,default=8001"`
	Version string `env:"API_VERSION,default=demo"`
}

// Addr returns the listen address in host:port form.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Providers selects the pluggable backends.
type Providers struct {
	Directory string `env:"TD_PROVIDER,default=yaml"`
	Secrets   string `env:"SM_PROVIDER,default=environment"`
}

// DirectoryKind returns the configured directory provider kind.
func (p Providers) DirectoryKind() directory.ProviderKind {
	return directory.ProviderKind(p.Directory)
}

// SecretsKind returns the configured secrets provider kind.
func (p Providers) SecretsKind() secrets.ProviderKind {
	return secrets.ProviderKind(p.Secrets)
}

// Redis gates cache construction. Connection details are decoded by the
// cache package itself.
type Redis struct {
	Enable bool `env:"REDIS_ENABLE,default=false"`
}

// Config is everything a binary needs from the environment at startup.
type Config struct {
	Server    Server
	Providers Providers
	Redis     Redis
}

// Decode populates Config from the process environment.
func Decode() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode environment: %w", err)
	}
	return cfg, nil
}
