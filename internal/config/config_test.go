package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gaddag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Build.MinWordLength)
	assert.Equal(t, 1, cfg.Build.Workers)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
build:
  input: words.txt
  min_word_length: 3
  workers: 4
logging:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "words.txt", cfg.Build.Input)
	assert.Equal(t, 3, cfg.Build.MinWordLength)
	assert.Equal(t, 4, cfg.Build.Workers)
	assert.Equal(t, "json", cfg.Logging.Format)

	// untouched fields keep their defaults
	assert.Equal(t, "gaddag.bin", cfg.Build.Output)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"zero min length":  "build:\n  min_word_length: 0\n",
		"too many workers": "build:\n  workers: 28\n",
		"bad level":        "logging:\n  level: loud\n",
		"bad format":       "logging:\n  format: xml\n",
		"no output":        "build:\n  output: \"\"\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := DefaultConfig().Marshal()
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
