// Package config holds runtime settings for the Inkwell engine and CLI.
// Layering follows defaults -> JSON file -> command-line flags, later
// sources winning; flag binding lives with the CLI.
package config

import "time"

// Config holds runtime settings for the sync engine.
type Config struct {
	// APIBaseURL is the root of the remote notes API, without trailing slash.
	APIBaseURL string

	// DBPath is the SQLite file path ("file:..." DSNs are accepted).
	DBPath string

	// KeystorePath is where the file-backed secure storage lives.
	KeystorePath string

	// CacheTTLMinutes bounds how long cached collections are served without
	// revalidation. Short by design: minutes, not hours.
	CacheTTLMinutes int

	// SyncCooldown suppresses immediately repeated drains after one
	// completes, absorbing connectivity flapping.
	SyncCooldown time.Duration

	// OnlineCheckInterval is how often the connectivity probe may re-check.
	OnlineCheckInterval time.Duration

	// StoreDecrypted opts in to caching plaintext locally. Off by default:
	// zero-knowledge at rest unless the user chooses otherwise.
	StoreDecrypted bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api/v1"
	c.DBPath = "inkwell.db"
	c.KeystorePath = "inkwell.keys"
	c.CacheTTLMinutes = 5
	c.SyncCooldown = 5 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.StoreDecrypted = false
}

// LoadConfig constructs a Config from defaults overlaid with the JSON file
// at path (if non-empty).
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
