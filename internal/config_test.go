package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/demanda/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled"}
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.AuthEnabled())
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AuthModeDisabled, cfg.Mode)
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.AuthEnabled())

	cfg = AuthConfig{Mode: "token"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is empty")
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	assert.Error(t, cfg.Validate())
}

func TestInputConfig_Extension(t *testing.T) {
	cfg := InputConfig{Path: "./data"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".csv", cfg.Extension)

	cfg = InputConfig{Path: "./data", Extension: "TXT"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".TXT", cfg.Extension)

	cfg = InputConfig{Path: "./data", Extension: ".c s v"}
	assert.Error(t, cfg.Validate())
}

func TestInputConfig_Required(t *testing.T) {
	assert.Error(t, (&InputConfig{}).Validate())
	assert.Error(t, (&InputConfig{Path: "x", Workers: -1}).Validate())
}

func TestExportConfig_FormatFromPath(t *testing.T) {
	cfg := ExportConfig{Path: "out/demand.xlsx"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "xlsx", cfg.Format)

	cfg = ExportConfig{Path: "out/demand.csv", Format: "CSV"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "csv", cfg.Format)

	cfg = ExportConfig{Path: "out/demand.json", Format: "json"}
	assert.Error(t, cfg.Validate())
}

func TestFullConfig_Defaults(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	assert.Error(t, cfg.Validate(), "full config with token mode and empty token should fail")
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("DEMANDA_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  log_level: debug
  http:
    port: 9090
input:
  path: /srv/cenace
  extension: csv
  workers: 4
sqlite:
  path: /var/lib/demanda.db
auth:
  mode: token
  token: ${DEMANDA_TEST_TOKEN}
export:
  path: /tmp/dataset.xlsx
`), 0o644))

	var cfg Config
	require.NoError(t, config.Load(path, &cfg))

	assert.Equal(t, slog.LevelDebug, cfg.App.LogLevel)
	assert.Equal(t, ":9090", cfg.App.HTTP.Address())
	assert.Equal(t, "/srv/cenace", cfg.Input.Path)
	assert.Equal(t, ".csv", cfg.Input.Extension)
	assert.Equal(t, 4, cfg.Input.Workers)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
	assert.True(t, cfg.Auth.AuthEnabled())
	assert.Equal(t, "xlsx", cfg.Export.Format)
}

func TestLoadYAML_ValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  http:\n    port: 0\n"), 0o644))

	var cfg Config
	err := config.Load(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
