package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the client.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	SRM         SRMConfig                 `json:"srm"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress         string `json:"server_address"`
	PreviewDir            string `json:"preview_dir"`
	PreviewTTLMinutes     int    `json:"preview_ttl_minutes"`
	PreviewSweepMinutes   int    `json:"preview_sweep_minutes"`
	EnrichConcurrency     int    `json:"enrich_concurrency"`
	MaxUploadBytes        int64  `json:"max_upload_bytes"`
	DefaultLanguage       string `json:"default_language"`
	ExtractionCacheTTLMin int    `json:"extraction_cache_ttl_minutes"`
}

// SRMConfig points at the remote SRM services.
type SRMConfig struct {
	BaseURL              string `json:"base_url"`
	ChatTimeoutSeconds   int    `json:"chat_timeout_seconds"`
	OCRTimeoutSeconds    int    `json:"ocr_timeout_seconds"`
	HealthTimeoutSeconds int    `json:"health_timeout_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.SRM.BaseURL == "" {
		return nil, fmt.Errorf("srm.base_url must be configured")
	}

	// Relative sqlite paths resolve against the config file location.
	for name, dbCfg := range cfg.Databases {
		if (name == "sqlite" || name == "sqlite3") && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[name] = dbCfg
		}
	}

	return &cfg, nil
}
