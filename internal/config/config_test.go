package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeyHash = strings.Repeat("ab", 32)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "loads with all required vars",
			envVars: map[string]string{
				"PORT":           "8080",
				"ENV":            "production",
				"DATABASE_URL":   "postgres://localhost/test",
				"API_KEY_HASHES": testKeyHash,
				"FACE_PROVIDER":  "rekognition",
				"SESSION_TTL":    "2m",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 8080, c.Port)
				assert.Equal(t, "production", c.Environment)
				assert.Equal(t, "postgres://localhost/test", c.DatabaseURL)
				assert.Equal(t, []string{testKeyHash}, c.APIKeyHashes)
				assert.Equal(t, "rekognition", c.FaceProvider)
				assert.Equal(t, 2*time.Minute, c.SessionTTL)
			},
		},
		{
			name: "uses defaults when optional vars missing",
			envVars: map[string]string{
				"DATABASE_URL":   "postgres://localhost/test",
				"API_KEY_HASHES": testKeyHash + "," + strings.Repeat("cd", 32),
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Port)
				assert.Equal(t, "development", c.Environment)
				assert.Equal(t, "deepface", c.FaceProvider)
				assert.Equal(t, 10*time.Minute, c.SessionTTL)
				assert.Equal(t, time.Minute, c.SessionCleanupInterval)
				assert.Equal(t, 1024, c.ResultCacheSize)
				assert.Equal(t, 5*1024*1024, c.MaxFrameSize)
				assert.Len(t, c.APIKeyHashes, 2)
				assert.False(t, c.WebhooksEnabled())
			},
		},
		{
			name: "fails when DATABASE_URL missing",
			envVars: map[string]string{
				"API_KEY_HASHES": testKeyHash,
			},
			wantErr: true,
		},
		{
			name: "fails when API_KEY_HASHES missing",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
			},
			wantErr: true,
		},
		{
			name: "fails on malformed key hash",
			envVars: map[string]string{
				"DATABASE_URL":   "postgres://localhost/test",
				"API_KEY_HASHES": "not-a-hash",
			},
			wantErr: true,
		},
		{
			name: "fails on unknown provider",
			envVars: map[string]string{
				"DATABASE_URL":   "postgres://localhost/test",
				"API_KEY_HASHES": testKeyHash,
				"FACE_PROVIDER":  "opencv",
			},
			wantErr: true,
		},
		{
			name: "fails when webhook has no secret",
			envVars: map[string]string{
				"DATABASE_URL":   "postgres://localhost/test",
				"API_KEY_HASHES": testKeyHash,
				"WEBHOOK_URL":    "https://example.com/hooks",
			},
			wantErr: true,
		},
		{
			name: "webhook with secret",
			envVars: map[string]string{
				"DATABASE_URL":   "postgres://localhost/test",
				"API_KEY_HASHES": testKeyHash,
				"WEBHOOK_URL":    "https://example.com/hooks",
				"WEBHOOK_SECRET": "whsec",
			},
			check: func(t *testing.T, c *Config) {
				assert.True(t, c.WebhooksEnabled())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"PORT", "ENV", "DATABASE_URL", "API_KEY_HASHES", "FACE_PROVIDER",
				"SESSION_TTL", "WEBHOOK_URL", "WEBHOOK_SECRET",
			} {
				t.Setenv(key, "")
				require.NoError(t, os.Unsetenv(key))
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			assert.Equal(t, tt.want, c.IsDevelopment())
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			assert.Equal(t, tt.want, c.IsProduction())
		})
	}
}
