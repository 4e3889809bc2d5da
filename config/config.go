package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guarzo/ledgerapi/common"
	"github.com/guarzo/ledgerapi/modules/api"
)

// Environment variables that override the file.
const (
	apiURLEnvVar    = "LEDGER_API_URL"
	storeEnvVar     = "LEDGER_STORE"
	sessionEnvVar   = "LEDGER_SESSION_FILE"
	redisAddrEnvVar = "LEDGER_REDIS_ADDR"
	redisPassEnvVar = "LEDGER_REDIS_PASSWORD"
	logLevelEnvVar  = "LEDGER_LOG_LEVEL"
	logFormatEnvVar = "LEDGER_LOG_FORMAT"
	tokenTTLEnvVar  = "LEDGER_TOKEN_TTL"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	API struct {
		BaseURL     string        `yaml:"base_url"`
		UserAgent   string        `yaml:"user_agent"`
		Timeout     time.Duration `yaml:"timeout"`
		RefreshPath string        `yaml:"refresh_path"`
		LoginURL    string        `yaml:"login_url"`
	} `yaml:"api"`

	Session struct {
		Store    string        `yaml:"store"`
		TokenKey string        `yaml:"token_key"`
		TokenTTL time.Duration `yaml:"token_ttl"`
		File     string        `yaml:"file"`
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads filename, applies env overrides and fills defaults.
// An empty filename skips the file.
func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	switch cfg.Session.Store {
	case StoreFile, StoreMemory, StoreRedis:
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.API.BaseURL = GetEnv(apiURLEnvVar, c.API.BaseURL)
	c.Session.Store = GetEnv(storeEnvVar, c.Session.Store)
	c.Session.File = GetEnv(sessionEnvVar, c.Session.File)
	c.Session.Redis.Addr = GetEnv(redisAddrEnvVar, c.Session.Redis.Addr)
	c.Session.Redis.Password = GetEnv(redisPassEnvVar, c.Session.Redis.Password)
	c.Log.Level = GetEnv(logLevelEnvVar, c.Log.Level)
	c.Log.Format = GetEnv(logFormatEnvVar, c.Log.Format)

	if v := os.Getenv(tokenTTLEnvVar); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", tokenTTLEnvVar, err)
		}
		c.Session.TokenTTL = ttl
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:4000"
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "ledgerapi/1.0"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = common.DefaultTimeout
	}
	if c.API.RefreshPath == "" {
		c.API.RefreshPath = api.DefaultRefreshPath
	}
	if c.API.LoginURL == "" {
		c.API.LoginURL = "/login"
	}
	if c.Session.Store == "" {
		c.Session.Store = StoreFile
	}
	if c.Session.TokenKey == "" {
		c.Session.TokenKey = common.AccessTokenKey
	}
	if c.Session.TokenTTL == 0 {
		c.Session.TokenTTL = common.DefaultTokenTTL
	}
	if c.Session.File == "" {
		c.Session.File = defaultSessionFile()
	}
	if c.Session.Redis.Addr == "" {
		c.Session.Redis.Addr = "localhost:6379"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// defaultSessionFile is ledgerctl/session.json under the user's config dir,
// or in the working directory when there is none.
func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".ledgerctl-session.json"
	}
	return filepath.Join(dir, "ledgerctl", "session.json")
}

// GetEnv returns envVar's value, or defaultValue when it is unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
