package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.NotEmpty(t, cfg.TokenPath)
	assert.NotEmpty(t, cfg.CookiePath)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_Overrides(t *testing.T) {
	env := map[string]string{
		"RAGCHAT_API_URL": "https://chat.example.com",
		"RAGCHAT_TIMEOUT": "30s",
	}
	orig := GetEnv
	GetEnv = func(key string) string { return env[key] }
	defer func() { GetEnv = orig }()

	cfg := NewConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "https://chat.example.com", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base URL", func(c *Config) { c.APIBaseURL = "" }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"empty token path", func(c *Config) { c.TokenPath = "" }},
		{"empty cookie path", func(c *Config) { c.CookiePath = "" }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
