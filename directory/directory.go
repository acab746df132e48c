// Package directory implements the telco routing directory: a mapping of
// telecom identifier prefixes to backend connection records, resolved by
// longest starts-with prefix match. The store supports atomic wholesale
// snapshot replacement so concurrent lookups never observe a partially
// reloaded directory.
package directory

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"
)

// Record holds one telco backend's connection and client credential info.
type Record struct {
	BaseURL      string `yaml:"base_url" json:"base_url"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
}

// Snapshot is one immutable load of the directory: routing prefixes mapped to
// backend records. A Snapshot is never mutated after it is installed; reloads
// install a replacement.
type Snapshot struct {
	Prefixes map[string]Record `yaml:"prefixes" json:"prefixes"`
}

var (
	// ErrNotLoaded indicates a resolve was attempted before any snapshot was
	// installed. This is a caller contract violation, not a lookup miss.
	ErrNotLoaded = errors.New("directory: not loaded")

	// ErrNoRoute indicates no prefix matched the query. A normal outcome for
	// unknown destinations, distinct from any system failure.
	ErrNoRoute = errors.New("directory: no matching prefix")
)

// state couples a snapshot with its derived prefix ordering so both are
// replaced in a single atomic store.
type state struct {
	snap   Snapshot
	sorted []string
}

// Store holds the current directory snapshot and answers longest-prefix
// lookups. The zero value is usable and reports ErrNotLoaded until the first
// Swap.
type Store struct {
	cur atomic.Pointer[state]
}

// NewStore returns an empty, unloaded Store.
func NewStore() *Store { return &Store{} }

// Swap atomically installs a new snapshot, replacing the previous one and its
// derived sorted prefix list in the same step. In-flight resolves see either
// the old or the new snapshot in full.
func (s *Store) Swap(snap Snapshot) {
	sorted := make([]string, 0, len(snap.Prefixes))
	for p := range snap.Prefixes {
		sorted = append(sorted, p)
	}
	// Longest first so the most specific prefix wins. Equal-length prefixes
	// order lexicographically: map iteration order is random, so the
	// tie-break must be explicit to keep resolution deterministic.
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	s.cur.Store(&state{snap: snap, sorted: sorted})
}

// Loaded reports whether a snapshot has been installed.
func (s *Store) Loaded() bool { return s.cur.Load() != nil }

// Resolve finds the backend record for the longest prefix of mcc+sn. It
// returns ErrNoRoute when nothing matches (including an empty query or an
// empty directory) and ErrNotLoaded when called before any snapshot exists.
func (s *Store) Resolve(mcc, sn string) (Record, error) {
	st := s.cur.Load()
	if st == nil {
		return Record{}, ErrNotLoaded
	}
	query := mcc + sn
	if query == "" {
		return Record{}, ErrNoRoute
	}
	for _, prefix := range st.sorted {
		if strings.HasPrefix(query, prefix) {
			return st.snap.Prefixes[prefix], nil
		}
	}
	return Record{}, ErrNoRoute
}

// Snapshot returns the currently installed snapshot, if any.
func (s *Store) Snapshot() (Snapshot, bool) {
	st := s.cur.Load()
	if st == nil {
		return Snapshot{}, false
	}
	return st.snap, true
}
