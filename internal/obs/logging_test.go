package obs

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_UnrecognizedLevelDefaultsToInfo(t *testing.T) {
	NewLogger("not-a-level", "test")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewLogger_RecognizedLevelIsApplied(t *testing.T) {
	NewLogger("warn", "test")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
