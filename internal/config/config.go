package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Backend settings
	APIBaseURL     string
	RequestTimeout time.Duration

	// Credential storage
	TokenPath  string
	CookiePath string

	// UI settings
	PageSize int
	Verbose  bool
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	stateDir := expandHome("~/.ragchat")

	return &Config{
		// Backend defaults
		APIBaseURL:     "http://localhost:8000",
		RequestTimeout: 120 * time.Second,

		// Credential storage defaults
		TokenPath:  filepath.Join(stateDir, "token"),
		CookiePath: filepath.Join(stateDir, "cookies.json"),

		// UI defaults
		PageSize: 20,
		Verbose:  false,
	}
}

// ApplyEnv overrides configuration from RAGCHAT_* environment variables
func (c *Config) ApplyEnv() {
	if v := GetEnv("RAGCHAT_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := GetEnv("RAGCHAT_TOKEN_PATH"); v != "" {
		c.TokenPath = v
	}
	if v := GetEnv("RAGCHAT_COOKIE_PATH"); v != "" {
		c.CookiePath = v
	}
	if v := GetEnv("RAGCHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.TokenPath == "" {
		return fmt.Errorf("token path cannot be empty")
	}
	if c.CookiePath == "" {
		return fmt.Errorf("cookie path cannot be empty")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page size must be at least 1")
	}
	return nil
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir := getHomeDir()
		return homeDir + path[1:]
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = func(key string) string {
	// Will be replaced with os.Getenv in main
	return ""
}
