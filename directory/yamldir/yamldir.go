// Package yamldir provides the file-based directory provider: routing data is
// read from a YAML document and can be hot-reloaded when the file changes.
package yamldir

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/opentelco/tokenbroker/directory"
)

// Config for the YAML directory provider. Defaults load via envdecode.
type Config struct {
	// Path to the YAML directory file. ENV: TD_YAML_PATH
	Path string `env:"TD_YAML_PATH,required"`
	// HotReload enables watching the file for changes. ENV: TD_YAML_HOT_RELOAD
	HotReload bool `env:"TD_YAML_HOT_RELOAD,default=false"`
	// ReloadInterval is the polling fallback period when hot reload is on.
	// ENV: TD_YAML_RELOAD_INTERVAL
	ReloadInterval time.Duration `env:"TD_YAML_RELOAD_INTERVAL,default=5s"`

	// Logger receives background reload outcomes. Optional.
	Logger *slog.Logger
}

// Provider implements directory.Provider over a YAML file.
type Provider struct {
	cfg   Config
	store *directory.Store
	log   *slog.Logger

	mu     sync.Mutex
	loaded bool

	watchOnce sync.Once
}

// New constructs a Provider from an explicit Config.
func New(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("yamldir: path is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Provider{cfg: cfg, store: directory.NewStore(), log: log}, nil
}

// NewFromEnv builds a Provider using envdecode to populate Config. The
// logger receives background reload outcomes; nil discards them.
func NewFromEnv(log *slog.Logger) (*Provider, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("yamldir: config: %w", err)
	}
	cfg.Logger = log
	return New(cfg)
}

// Store returns the store this provider populates.
func (p *Provider) Store() *directory.Store { return p.store }

// Load reads the YAML file into the store. Idempotent: a second call is a
// no-op once a load has succeeded. File and parse errors are returned to the
// caller.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}
	return p.loadLocked(ctx)
}

// Reload forces a fresh read of the file and atomically swaps the new
// snapshot in, invalidating the store's derived prefix ordering in the same
// step. On failure the previous snapshot stays installed.
func (p *Provider) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	return p.loadLocked(ctx)
}

func (p *Provider) loadLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := os.ReadFile(p.cfg.Path)
	if err != nil {
		return fmt.Errorf("yamldir: read %s: %w", p.cfg.Path, err)
	}
	var snap directory.Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("yamldir: parse %s: %w", p.cfg.Path, err)
	}
	if snap.Prefixes == nil {
		return fmt.Errorf("yamldir: %s: missing top-level prefixes mapping", p.cfg.Path)
	}
	p.store.Swap(snap)
	p.loaded = true
	p.log.Info("directory loaded", "path", p.cfg.Path, "prefixes", len(snap.Prefixes))
	return nil
}

// Watch starts the hot-reload loop: an fsnotify watcher on the file's
// directory plus an interval ticker fallback. It returns immediately when hot
// reload is disabled and runs until ctx is cancelled. Reload failures are
// logged and the previous snapshot remains live. Watch may be called once.
func (p *Provider) Watch(ctx context.Context) {
	if !p.cfg.HotReload {
		return
	}
	p.watchOnce.Do(func() { go p.runWatch(ctx) })
}

func (p *Provider) runWatch(ctx context.Context) {
	interval := p.cfg.ReloadInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.log.Warn("directory watcher unavailable, polling only", "err", err)
	} else {
		defer watcher.Close()
		// Watch the containing directory: editors and config mounts replace
		// the file rather than writing it in place.
		if err := watcher.Add(filepath.Dir(p.cfg.Path)); err != nil {
			p.log.Warn("directory watch failed, polling only", "err", err)
		} else {
			events = watcher.Events
		}
	}

	target := filepath.Clean(p.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			p.reloadLogged(ctx)
		case <-ticker.C:
			p.reloadLogged(ctx)
		}
	}
}

func (p *Provider) reloadLogged(ctx context.Context) {
	if err := p.Reload(ctx); err != nil {
		p.log.Error("directory reload failed, keeping previous snapshot", "err", err)
	}
}
