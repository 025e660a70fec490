package config

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantDebug bool
		wantJSON  bool
	}{
		{name: "production is json at info", env: "production", wantJSON: true},
		{name: "development is text at debug", env: "development", wantDebug: true},
		{name: "level override", env: "production", level: "debug", wantDebug: true, wantJSON: true},
		{name: "unknown level keeps default", env: "staging", level: "verbose", wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.env, tt.level)

			logger.Debug("frame processed")
			assert.Equal(t, tt.wantDebug, buf.Len() > 0)

			buf.Reset()
			logger.Info("session started")
			require.NotZero(t, buf.Len())

			var entry map[string]interface{}
			isJSON := json.Unmarshal(buf.Bytes(), &entry) == nil
			assert.Equal(t, tt.wantJSON, isJSON)
			assert.Contains(t, buf.String(), "liveness")
		})
	}
}
