package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func loadFlags(t *testing.T, path string) map[string]bool {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg.Flags
}

func TestSaveFlag_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, SaveFlag(path, "watch-sidecar", true))

	require.Equal(t, map[string]bool{"watch-sidecar": true}, loadFlags(t, path))
}

// TestSaveFlag_PreservesCommentsAndOtherKeys verifies editing a flag leaves
// the rest of a hand-written file intact.
func TestSaveFlag_PreservesCommentsAndOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.NoError(t, SaveFlag(path, "log-tail", true))
	require.NoError(t, SaveFlag(path, "watch-sidecar", false))
	require.NoError(t, SaveFlag(path, "log-tail", false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "# Binary name")
	require.Contains(t, content, "name: server")
	require.Equal(t, 1, strings.Count(content, "log-tail"))

	require.Equal(t, map[string]bool{"log-tail": false, "watch-sidecar": false}, loadFlags(t, path))
}

func TestSaveFlag_ReplacesNonMappingFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flags: nope\nsidecar:\n  name: worker\n"), 0o600))

	require.NoError(t, SaveFlag(path, "watch-sidecar", true))

	require.Equal(t, map[string]bool{"watch-sidecar": true}, loadFlags(t, path))
}

func TestSaveFlag_RejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, SaveFlag(filepath.Join(dir, "a.yaml"), "", true))

	listPath := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(listPath, []byte("- a\n- b\n"), 0o600))
	require.Error(t, SaveFlag(listPath, "watch-sidecar", true))

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("flags: [unclosed\n"), 0o600))
	require.Error(t, SaveFlag(badPath, "watch-sidecar", true))
}
