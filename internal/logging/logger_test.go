package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidConfigurations(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("info", format)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		_ = logger.Sync()
	}
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New("not-a-level", "json")
	assert.Error(t, err)
}

func TestNewInvalidFormat(t *testing.T) {
	_, err := New("info", "xml")
	assert.Error(t, err)
}
