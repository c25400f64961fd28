package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_NAME", "cenace")
	path := writeYAML(t, "name: ${CONFIG_TEST_NAME}\ncount: 3\n")

	var s sample
	require.NoError(t, Load(path, &s))
	assert.Equal(t, sample{Name: "cenace", Count: 3}, s)
}

func TestLoad_Errors(t *testing.T) {
	var s sample
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &s)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = Load(writeYAML(t, "name: [unterminated\n"), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")

	err = Load(writeYAML(t, "count: -1\n"), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadOptional(t *testing.T) {
	s := sample{Name: "default", Count: 1}
	require.NoError(t, LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &s))
	assert.Equal(t, "default", s.Name)

	require.NoError(t, LoadOptional(writeYAML(t, "count: 7\n"), &s))
	assert.Equal(t, sample{Name: "default", Count: 7}, s)

	bad := sample{Count: -5}
	assert.Error(t, LoadOptional("", &bad))
}
