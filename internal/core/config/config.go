// Package config provides configuration management for sieve.
package config

import (
	"fmt"
	"os"
	"time"
)

// APITokenEnv names the environment variable holding the shared API token.
// The token is never read from config files.
const APITokenEnv = "SIEVE_API_TOKEN"

// Config holds the full sieve configuration.
type Config struct {
	DatabaseURL  string
	DataDir      string
	Substitution SubstitutionConfig
	Server       ServerConfig
	Log          LogConfig
}

// SubstitutionConfig controls the guarded executor.
type SubstitutionConfig struct {
	// DefaultTimeout applies to rules storing a non-positive timeout.
	DefaultTimeout time.Duration
	// GracePeriod is how long a timed-out worker may keep running before
	// the process restarts.
	GracePeriod time.Duration
	// Template is the replacement used when a request names none.
	Template string
}

// ServerConfig holds configuration for the gRPC filter service.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	APIToken       string
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		DatabaseURL: "sqlite://./data/sieve.db",
		DataDir:     "./data",
		Substitution: SubstitutionConfig{
			DefaultTimeout: 3 * time.Second,
			GracePeriod:    3 * time.Second,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           50061,
			RequestTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// APIToken returns the shared token from the environment, empty if unset.
func APIToken() string {
	return os.Getenv(APITokenEnv)
}
