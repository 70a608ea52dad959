package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db-url":          "database.url",
	"data-dir":        "data_dir",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"host":            "server.host",
	"port":            "server.port",
	"grace-period":    "substitution.grace_period",
	"default-timeout": "substitution.default_timeout",
}

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags present in the set are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("database.url", def.DatabaseURL)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("substitution.default_timeout", def.Substitution.DefaultTimeout.String())
	v.SetDefault("substitution.grace_period", def.Substitution.GracePeriod.String())
	v.SetDefault("substitution.template", def.Substitution.Template)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// SIEVE_DATABASE_URL, SIEVE_SERVER_PORT, ...
	v.SetEnvPrefix("SIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Errorf("failed to read config file: %w", err)
		}
		// Secrets must be environment-only
		if err := validateNoSecretsInConfig(v); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DatabaseURL: v.GetString("database.url"),
		DataDir:     v.GetString("data_dir"),
		Substitution: SubstitutionConfig{
			DefaultTimeout: v.GetDuration("substitution.default_timeout"),
			GracePeriod:    v.GetDuration("substitution.grace_period"),
			Template:       v.GetString("substitution.template"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			APIToken:       APIToken(),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive durations and known log settings.
func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("database.url must be set")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return errors.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Substitution.DefaultTimeout <= 0 {
		return errors.Errorf("default_timeout must be positive, got %v", cfg.Substitution.DefaultTimeout)
	}
	if cfg.Substitution.GracePeriod <= 0 {
		return errors.Errorf("grace_period must be positive, got %v", cfg.Substitution.GracePeriod)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
// Checked on the file contents only: SIEVE_API_TOKEN itself is allowed.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("api_token") || v.InConfig("server.api_token") {
		return errors.Errorf("API tokens not allowed in config files (use %s environment variable)", APITokenEnv)
	}
	return nil
}
