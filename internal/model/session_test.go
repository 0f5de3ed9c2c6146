package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRecognized(t *testing.T) {
	recognized := []Status{
		StatusPending, StatusRunning, StatusCompleted,
		StatusError, StatusHalting, StatusHalted,
	}
	for _, s := range recognized {
		assert.True(t, s.Recognized(), "status %q", s)
	}

	assert.False(t, StatusUnknown.Recognized())
	assert.False(t, Status("paused").Recognized())
	assert.False(t, Status("").Recognized())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusHalted.Terminal())

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusHalting.Terminal())
	assert.False(t, StatusUnknown.Terminal())
}
