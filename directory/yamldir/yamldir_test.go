package yamldir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opentelco/tokenbroker/directory"
)

const sampleYAML = `prefixes:
  "97205":
    base_url: http://telco-orange:8080
    client_id: ORANGE_DEMO_ID
    client_secret: ORANGE_DEMO_SECRET
  "972050":
    base_url: http://telco-vodafone:8081
    client_id: VF_DEMO_ID
    client_secret: VF_DEMO_SECRET
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeFile(t, path, sampleYAML)

	p, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec, err := p.Store().Resolve("972", "050789")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.ClientID != "VF_DEMO_ID" {
		t.Fatalf("ClientID = %q, want VF_DEMO_ID", rec.ClientID)
	}

	// Second Load is a no-op, not an error.
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	p, err := New(Config{Path: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(context.Background()); err == nil {
		t.Fatal("expected error loading missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeFile(t, path, "prefixes: [not, a, mapping")

	p, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeFile(t, path, "routes:\n  \"97205\": {}\n")

	p, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(context.Background()); err == nil {
		t.Fatal("expected schema error for unknown top-level key")
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeFile(t, path, sampleYAML)

	p, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeFile(t, path, `prefixes:
  "4477":
    base_url: http://telco-vodafone:8081
    client_id: VF_UK_ID
    client_secret: VF_UK_SECRET
`)
	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, err := p.Store().Resolve("972", "050789"); !errors.Is(err, directory.ErrNoRoute) {
		t.Fatalf("old prefix still resolvable after reload: %v", err)
	}
	rec, err := p.Store().Resolve("44", "77999")
	if err != nil || rec.ClientID != "VF_UK_ID" {
		t.Fatalf("new prefix not resolvable: (%v, %v)", rec, err)
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	writeFile(t, path, sampleYAML)

	p, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeFile(t, path, "prefixes: [broken")
	if err := p.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}

	// The previous snapshot remains live.
	if _, err := p.Store().Resolve("972", "05123"); err != nil {
		t.Fatalf("previous snapshot lost after failed reload: %v", err)
	}
}

func TestWatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "directory.yaml")
	writeFile(t, path, sampleYAML)

	p, err := New(Config{Path: path, HotReload: true, ReloadInterval: 25 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p.Watch(ctx)

	writeFile(t, path, `prefixes:
  "123":
    base_url: http://test:8082
    client_id: TEST_ID
    client_secret: TEST_SECRET
`)

	deadline := time.After(3 * time.Second)
	for {
		if rec, err := p.Store().Resolve("1", "23456"); err == nil && rec.ClientID == "TEST_ID" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not pick up directory change in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
