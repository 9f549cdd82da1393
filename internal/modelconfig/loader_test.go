package modelconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptors(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	return path
}

const validDoc = `
models:
  gpt:
    provider_kind: openai-chat
    model_name: gpt-test
    endpoint: https://example.test/gpt
    credential_ref: MC_TEST_GPT_KEY
    max_tokens: 512
    temperature: 0.7
    enabled: true
    cost_per_1k_tokens: 0.01
    display_name: GPT Test
  claude:
    provider_kind: anthropic-messages
    model_name: claude-test
    endpoint: https://example.test/claude
    credential_ref: MC_TEST_CLAUDE_KEY
    max_tokens: 512
    temperature: 0.7
    enabled: true
    cost_per_1k_tokens: 0.02
    display_name: Claude Test
default_models: [gpt, claude]
`

func TestLoad_ValidDocument(t *testing.T) {
	os.Setenv("MC_TEST_GPT_KEY", "k1")
	os.Setenv("MC_TEST_CLAUDE_KEY", "k2")
	t.Cleanup(func() {
		os.Unsetenv("MC_TEST_GPT_KEY")
		os.Unsetenv("MC_TEST_CLAUDE_KEY")
	})

	path := writeDescriptors(t, validDoc)
	set, err := Load(path)
	require.NoError(t, err)

	d, ok := set.Descriptor("gpt")
	require.True(t, ok)
	assert.True(t, d.Enabled)
	assert.Equal(t, "gpt-test", d.ModelName)
	assert.ElementsMatch(t, []string{"gpt", "claude"}, set.DefaultModels())
}

func TestLoad_MissingCredential_ForcesDisabled(t *testing.T) {
	os.Unsetenv("MC_TEST_GPT_KEY")
	os.Setenv("MC_TEST_CLAUDE_KEY", "k2")
	t.Cleanup(func() { os.Unsetenv("MC_TEST_CLAUDE_KEY") })

	path := writeDescriptors(t, validDoc)
	set, err := Load(path)
	require.NoError(t, err)

	d, ok := set.Descriptor("gpt")
	require.True(t, ok)
	assert.False(t, d.Enabled, "descriptor with unresolved credential_ref must be forced disabled")

	// DefaultModels filters out the now-disabled gpt, leaving only claude.
	assert.Equal(t, []string{"claude"}, set.DefaultModels())
}

func TestLoad_EmptyID_ReturnsValidationError(t *testing.T) {
	// A YAML map cannot repeat a key, so a duplicate id cannot be written
	// into the file; this exercises the empty-id guard with a single entry
	// keyed by "".
	doc := `
models:
  "":
    provider_kind: openai-chat
    model_name: anon
    endpoint: https://example.test/anon
    credential_ref: MC_TEST_ANON_KEY
    enabled: true
default_models: []
`
	path := writeDescriptors(t, doc)
	_, err := Load(path)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLoad_MissingFile_ReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML_ReturnsError(t *testing.T) {
	path := writeDescriptors(t, "not: [valid: yaml")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSet_Enabled_ExcludesDisabled(t *testing.T) {
	os.Setenv("MC_TEST_GPT_KEY", "k1")
	os.Unsetenv("MC_TEST_CLAUDE_KEY")
	t.Cleanup(func() { os.Unsetenv("MC_TEST_GPT_KEY") })

	path := writeDescriptors(t, validDoc)
	set, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"gpt"}, set.Enabled())
}

func TestDescriptor_ToProviderConfig(t *testing.T) {
	os.Setenv("MC_TEST_GPT_KEY", "k1")
	os.Setenv("MC_TEST_CLAUDE_KEY", "k2")
	t.Cleanup(func() {
		os.Unsetenv("MC_TEST_GPT_KEY")
		os.Unsetenv("MC_TEST_CLAUDE_KEY")
	})

	path := writeDescriptors(t, validDoc)
	set, err := Load(path)
	require.NoError(t, err)

	d, ok := set.Descriptor("gpt")
	require.True(t, ok)
	cfg := d.ToProviderConfig()
	assert.Equal(t, "gpt", cfg.ModelID)
	assert.Equal(t, "k1", cfg.Credential)
	assert.Equal(t, 512, cfg.MaxTokens)
}

func TestStore_ReloadSwapsSnapshotAtomically(t *testing.T) {
	os.Setenv("MC_TEST_GPT_KEY", "k1")
	os.Setenv("MC_TEST_CLAUDE_KEY", "k2")
	t.Cleanup(func() {
		os.Unsetenv("MC_TEST_GPT_KEY")
		os.Unsetenv("MC_TEST_CLAUDE_KEY")
	})

	path := writeDescriptors(t, validDoc)
	store, err := NewStore(path)
	require.NoError(t, err)

	first := store.Snapshot()
	_, ok := first.Descriptor("claude")
	require.True(t, ok)

	// Rewrite the file dropping claude entirely, then reload.
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  gpt:
    provider_kind: openai-chat
    model_name: gpt-test
    endpoint: https://example.test/gpt
    credential_ref: MC_TEST_GPT_KEY
    enabled: true
default_models: [gpt]
`), 0600))
	require.NoError(t, store.Reload())

	second := store.Snapshot()
	_, ok = second.Descriptor("claude")
	assert.False(t, ok, "reload must replace the snapshot wholesale")

	// The first snapshot reference must remain unaffected by the reload,
	// matching the copy-on-write readers-never-block guarantee.
	_, ok = first.Descriptor("claude")
	assert.True(t, ok)
}

func TestStore_Reload_KeepsPreviousSnapshotOnParseFailure(t *testing.T) {
	os.Setenv("MC_TEST_GPT_KEY", "k1")
	os.Setenv("MC_TEST_CLAUDE_KEY", "k2")
	t.Cleanup(func() {
		os.Unsetenv("MC_TEST_GPT_KEY")
		os.Unsetenv("MC_TEST_CLAUDE_KEY")
	})

	path := writeDescriptors(t, validDoc)
	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0600))
	err = store.Reload()
	require.Error(t, err)

	_, ok := store.Snapshot().Descriptor("gpt")
	assert.True(t, ok, "a failed reload must leave the prior snapshot in effect")
}
