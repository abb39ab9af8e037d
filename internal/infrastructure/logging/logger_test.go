package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewFromLevel(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		debug       bool
	}{
		{"production info", "info", false, false},
		{"production debug", "debug", false, true},
		{"development default", "", true, true},
		{"bad level falls back", "chatty", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewFromLevel(tt.level, tt.development)
			require.NotNil(t, logger)
			assert.Equal(t, tt.debug, logger.Core().Enabled(-1))
		})
	}
}

func TestComponentNamesLogger(t *testing.T) {
	logger := NewNop()
	assert.NotNil(t, logger.Component("supervisor"))
}
