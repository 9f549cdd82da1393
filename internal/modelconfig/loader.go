package modelconfig

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Load parses a model-descriptor YAML document from path and returns a
// validated Set. Invalid or duplicate ids abort loading, matching §6's
// "Invalid or duplicate ids abort startup."
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modelconfig: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("modelconfig: parse %s: %w", path, err)
	}

	descriptors := make(map[string]Descriptor, len(f.Models))
	for id, d := range f.Models {
		if id == "" {
			return nil, &ValidationError{Reason: "model id must not be empty"}
		}
		if _, dup := descriptors[id]; dup {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate model id %q", id)}
		}
		d.ID = id
		descriptors[id] = d
	}

	resolveCredentials(descriptors)

	return &Set{
		descriptors:   descriptors,
		defaultModels: f.DefaultModels,
	}, nil
}

// Store holds the current Set under an atomic pointer so readers never
// observe a torn config mid-reload, matching §5's "ModelDescriptor table:
// read-mostly; mutations only through an atomic replace (copy-on-write).
// Readers see a consistent snapshot."
type Store struct {
	current atomic.Pointer[Set]
	mu      sync.Mutex // serialises Reload calls; reads never block on it
	path    string
}

// NewStore loads path and wraps it in a Store.
func NewStore(path string) (*Store, error) {
	set, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(set)
	return s, nil
}

// Snapshot returns the current Set. Safe for concurrent use.
func (s *Store) Snapshot() *Set {
	return s.current.Load()
}

// Reload re-parses the descriptor file and atomically swaps the snapshot.
// On parse failure the previous snapshot remains in effect.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(set)
	return nil
}
