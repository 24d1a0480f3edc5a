package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigRefSuffix(t *testing.T) {
	t.Setenv("OUTBOX_TEST_SECRET", "s3cret")

	got, err := Default().ResolveConfig(map[string]any{
		"url":         "https://example.com/hook",
		"passwordRef": "env:OUTBOX_TEST_SECRET",
	})
	require.NoError(t, err)

	assert.Equal(t, "s3cret", got["password"])
	assert.Equal(t, "https://example.com/hook", got["url"])
	assert.NotContains(t, got, "passwordRef")
}

func TestResolveConfigInlineReference(t *testing.T) {
	t.Setenv("OUTBOX_TEST_KEY", "abc123")

	got, err := Default().ResolveConfig(map[string]any{
		"apiKey": "env:OUTBOX_TEST_KEY",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", got["apiKey"])
}

func TestResolveConfigFileReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))

	got, err := Default().ResolveConfig(map[string]any{
		"passwordRef": "file:" + path,
	})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got["password"])
}

func TestResolveConfigNested(t *testing.T) {
	t.Setenv("OUTBOX_TEST_NESTED", "deep")

	got, err := Default().ResolveConfig(map[string]any{
		"transport": map[string]any{
			"tokenRef": "env:OUTBOX_TEST_NESTED",
		},
	})
	require.NoError(t, err)

	nested, ok := got["transport"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deep", nested["token"])
}

func TestResolveConfigErrors(t *testing.T) {
	_, err := Default().ResolveConfig(map[string]any{"passwordRef": "vault:nope"})
	assert.ErrorContains(t, err, "unsupported credential reference")

	_, err = Default().ResolveConfig(map[string]any{"passwordRef": "env:OUTBOX_TEST_DOES_NOT_EXIST"})
	assert.ErrorContains(t, err, "missing or empty")

	_, err = Default().ResolveConfig(map[string]any{"passwordRef": "file:/does/not/exist"})
	assert.ErrorContains(t, err, "could not be read")
}

func TestMaskConfig(t *testing.T) {
	got := MaskConfig(map[string]any{
		"url":      "https://example.com",
		"password": "hunter2",
		"apiKey":   "abc",
		"apiKeyRef": "env:KEY",
		"inner":    map[string]any{"passphrase": "x"},
	})

	assert.Equal(t, "https://example.com", got["url"])
	assert.Equal(t, placeholder, got["password"])
	assert.Equal(t, placeholder, got["apiKey"])
	assert.Equal(t, "env:KEY", got["apiKeyRef"])
	assert.Equal(t, placeholder, got["inner"].(map[string]any)["passphrase"])
}
