package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sieve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:50061", cfg.Server.Addr())
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "sqlite:///tmp/rules.db"
data_dir: /var/lib/sieve
substitution:
  default_timeout: 1500ms
  grace_period: 5s
  template: "[removed]"
server:
  port: 9090
log:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/rules.db", cfg.DatabaseURL)
	assert.Equal(t, "/var/lib/sieve", cfg.DataDir)
	assert.Equal(t, 1500*time.Millisecond, cfg.Substitution.DefaultTimeout)
	assert.Equal(t, 5*time.Second, cfg.Substitution.GracePeriod)
	assert.Equal(t, "[removed]", cfg.Substitution.Template)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv("SIEVE_SERVER_PORT", "8080")
	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port, "environment overrides config file")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	require.NoError(t, flags.Parse([]string{"--port", "7070"}))
	cfg, err = LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port, "flags override environment")
}

func TestLoadConfig_UnsetFlagDoesNotOverride(t *testing.T) {
	t.Setenv("SIEVE_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_APITokenFromEnvironment(t *testing.T) {
	t.Setenv(APITokenEnv, "env-token-0123456789")
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "env-token-0123456789", cfg.Server.APIToken)
}

func TestLoadConfig_RejectsTokenInFile(t *testing.T) {
	for _, content := range []string{
		"server:\n  api_token: should_be_rejected\n",
		"api_token: should_be_rejected\n",
	} {
		_, err := LoadConfig(writeConfig(t, content), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), APITokenEnv)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"port too large", "SIEVE_SERVER_PORT", "70000"},
		{"port zero", "SIEVE_SERVER_PORT", "0"},
		{"negative grace", "SIEVE_SUBSTITUTION_GRACE_PERIOD", "-1s"},
		{"zero timeout", "SIEVE_SUBSTITUTION_DEFAULT_TIMEOUT", "0s"},
		{"zero request timeout", "SIEVE_SERVER_REQUEST_TIMEOUT", "0s"},
		{"unknown log format", "SIEVE_LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := LoadConfig("", nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
