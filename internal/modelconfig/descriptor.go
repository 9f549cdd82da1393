// Package modelconfig loads the static model-descriptor file (§6 of the
// specification) and exposes an immutable, copy-on-write snapshot of it.
package modelconfig

import (
	"fmt"
	"os"

	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
)

// Descriptor is one entry from the model-descriptor file: an immutable
// configuration record loaded at startup and replaced only wholesale by an
// explicit config reload.
type Descriptor struct {
	ID                 string            `yaml:"-"`
	ProviderKind        llm.ProviderKind  `yaml:"provider_kind"`
	EndpointURL         string            `yaml:"endpoint"`
	ModelName           string            `yaml:"model_name"`
	CredentialRef       string            `yaml:"credential_ref"`
	SecretKeyRef        string            `yaml:"secret_key_ref,omitempty"`
	MaxTokens           int               `yaml:"max_tokens"`
	DefaultTemperature  float64           `yaml:"temperature"`
	Enabled             bool              `yaml:"enabled"`
	CostPer1KTokens     float64           `yaml:"cost_per_1k_tokens"`
	DisplayName         string            `yaml:"display_name"`
	Specialties         []string          `yaml:"specialties,omitempty"`
}

// file is the on-disk shape of the model-descriptor document.
type file struct {
	Models         map[string]Descriptor `yaml:"models"`
	DefaultModels  []string               `yaml:"default_models"`
}

// Set is an immutable snapshot of every descriptor plus the default model
// list, resolved once at load time. Readers obtained via Snapshot always see
// a fully-formed, validated set.
type Set struct {
	descriptors   map[string]Descriptor
	defaultModels []string
}

// Descriptor looks up one model by id.
func (s *Set) Descriptor(id string) (Descriptor, bool) {
	d, ok := s.descriptors[id]
	return d, ok
}

// Enabled returns the ids of every enabled descriptor.
func (s *Set) Enabled() []string {
	ids := make([]string, 0, len(s.descriptors))
	for id, d := range s.descriptors {
		if d.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// DefaultModels returns the configured default_models list, filtered to
// enabled ids only.
func (s *Set) DefaultModels() []string {
	out := make([]string, 0, len(s.defaultModels))
	for _, id := range s.defaultModels {
		if d, ok := s.descriptors[id]; ok && d.Enabled {
			out = append(out, id)
		}
	}
	return out
}

// All returns every descriptor, keyed by id.
func (s *Set) All() map[string]Descriptor {
	return s.descriptors
}

// resolveCredentials checks each descriptor's credential_ref against the
// environment and forces enabled=false when the secret is absent, per the
// ModelDescriptor invariant in §3: "credential_ref resolves to a non-empty
// secret or enabled is forced to false at load time."
func resolveCredentials(descriptors map[string]Descriptor) {
	for id, d := range descriptors {
		if !d.Enabled {
			continue
		}
		if d.CredentialRef == "" || os.Getenv(d.CredentialRef) == "" {
			d.Enabled = false
			descriptors[id] = d
			continue
		}
		if d.SecretKeyRef != "" && os.Getenv(d.SecretKeyRef) == "" {
			d.Enabled = false
			descriptors[id] = d
		}
	}
}

// Credential resolves a descriptor's primary credential from the
// environment. Returns "" if credential_ref is empty or names an unset
// variable; Enabled is not consulted.
func (d Descriptor) Credential() string {
	if d.CredentialRef == "" {
		return ""
	}
	return os.Getenv(d.CredentialRef)
}

// SecretKey resolves the secondary credential (baidu-ernie's secret key).
func (d Descriptor) SecretKey() string {
	if d.SecretKeyRef == "" {
		return ""
	}
	return os.Getenv(d.SecretKeyRef)
}

// ToProviderConfig builds the llm.Config a ProviderFactory expects from a
// resolved Descriptor.
func (d Descriptor) ToProviderConfig() llm.Config {
	return llm.Config{
		ModelID:      d.ID,
		ProviderKind: d.ProviderKind,
		ModelName:    d.ModelName,
		EndpointURL:  d.EndpointURL,
		Credential:   d.Credential(),
		SecretKey:    d.SecretKey(),
		MaxTokens:    d.MaxTokens,
		Temperature:  d.DefaultTemperature,
	}
}

// ValidationError reports a descriptor file that failed to load.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("modelconfig: %s", e.Reason)
}
