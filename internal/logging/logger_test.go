package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud", OutputPaths: []string{"stdout"}})
	assert.Error(t, err)
}

func TestNewBuildsAtEachLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		log, err := New(Config{Level: level, OutputPaths: []string{"stdout"}})
		require.NoError(t, err, level)
		require.NotNil(t, log)
	}
}

func TestNewDefaultNeverNil(t *testing.T) {
	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewNop())
}
