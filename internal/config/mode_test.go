package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRuntimeMode(t *testing.T) {
	tests := []struct {
		env  string
		want RuntimeMode
	}{
		{"Development", Development},
		{"development", Development},
		{" DEVELOPMENT ", Development},
		{"Production", Production},
		{"Staging", Production},
		{"", Production},
		{"dev", Production},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRuntimeMode(tt.env))
		})
	}
}

func TestRuntimeModeString(t *testing.T) {
	assert.Equal(t, "Development", Development.String())
	assert.Equal(t, "Production", Production.String())
	assert.True(t, Development.IsDevelopment())
	assert.False(t, Production.IsDevelopment())
}

func TestNewObservabilityConfig(t *testing.T) {
	assert.Equal(t, ObservabilityConfig{}, NewObservabilityConfig(""))

	cfg := NewObservabilityConfig("abc123")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "abc123", cfg.EndpointCredential)

	// presence is all that is checked
	assert.True(t, NewObservabilityConfig(" ").Enabled)
}
