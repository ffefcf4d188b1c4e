package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. Durations are
// accepted as strings like "5s".
type jsonConfig struct {
	APIBaseURL          string `json:"api_base_url"`
	DBPath              string `json:"db_path"`
	KeystorePath        string `json:"keystore_path"`
	CacheTTLMinutes     *int   `json:"cache_ttl_minutes"`
	SyncCooldown        string `json:"sync_cooldown"`
	OnlineCheckInterval string `json:"online_check_interval"`
	StoreDecrypted      *bool  `json:"store_decrypted"`
}

// parseJSON overlays cfg with values from the JSON file at path. An empty
// path is a no-op; unknown fields are ignored.
func parseJSON(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.DBPath != "" {
		cfg.DBPath = jc.DBPath
	}
	if jc.KeystorePath != "" {
		cfg.KeystorePath = jc.KeystorePath
	}
	if jc.CacheTTLMinutes != nil {
		cfg.CacheTTLMinutes = *jc.CacheTTLMinutes
	}
	if jc.SyncCooldown != "" {
		d, err := time.ParseDuration(jc.SyncCooldown)
		if err != nil {
			return fmt.Errorf("config: sync_cooldown: %w", err)
		}
		cfg.SyncCooldown = d
	}
	if jc.OnlineCheckInterval != "" {
		d, err := time.ParseDuration(jc.OnlineCheckInterval)
		if err != nil {
			return fmt.Errorf("config: online_check_interval: %w", err)
		}
		cfg.OnlineCheckInterval = d
	}
	if jc.StoreDecrypted != nil {
		cfg.StoreDecrypted = *jc.StoreDecrypted
	}
	return nil
}
