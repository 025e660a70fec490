package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{name: "generate test key", env: EnvTest},
		{name: "generate live key", env: EnvLive},
		{name: "invalid environment", env: "invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plainKey, hash, prefix, err := GenerateAPIKey(tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			expectedPrefix := "lv_" + tt.env + "_"
			assert.True(t, strings.HasPrefix(plainKey, expectedPrefix))
			assert.Len(t, plainKey, len(expectedPrefix)+apiKeyLength)
			assert.Equal(t, HashAPIKey(plainKey), hash)
			assert.Equal(t, plainKey[:14], prefix)
			assert.True(t, IsValidFormat(plainKey))
		})
	}
}

func TestHashAPIKey(t *testing.T) {
	key := "lv_test_ABC123XYZ789"

	hash1 := HashAPIKey(key)
	hash2 := HashAPIKey(key)

	assert.Equal(t, hash1, hash2)
	assert.Len(t, hash1, 64)
}

func TestMatchAPIKey(t *testing.T) {
	key, hash, _, err := GenerateAPIKey(EnvTest)
	require.NoError(t, err)

	assert.True(t, MatchAPIKey(key, []string{"deadbeef", hash}))
	assert.True(t, MatchAPIKey(key, []string{" " + strings.ToUpper(hash) + " "}))
	assert.False(t, MatchAPIKey(key, []string{"deadbeef"}))
	assert.False(t, MatchAPIKey(key, nil))
	assert.False(t, MatchAPIKey("lv_test_other", []string{hash}))
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid test key", "lv_test_" + strings.Repeat("A", apiKeyLength), true},
		{"valid live key", "lv_live_" + strings.Repeat("B", apiKeyLength), true},
		{"invalid prefix", "rekko_test_" + strings.Repeat("A", apiKeyLength), false},
		{"invalid environment", "lv_prod_" + strings.Repeat("A", apiKeyLength), false},
		{"too short", "lv_test_ABC", false},
		{"too long", "lv_test_" + strings.Repeat("A", apiKeyLength+10), false},
		{"invalid characters", "lv_test_" + strings.Repeat("!", apiKeyLength), false},
		{"missing parts", "lv_test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFormat(tt.key))
		})
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	keys := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		plainKey, _, _, err := GenerateAPIKey(EnvTest)
		require.NoError(t, err)
		assert.False(t, keys[plainKey], "duplicate key generated: %s", plainKey)
		keys[plainKey] = true
	}
}
