package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFollowController_StartsFollowing(t *testing.T) {
	c := NewFollowController()
	assert.Equal(t, Following, c.Mode())
	assert.True(t, c.ShouldAutoScroll())
}

func TestFollowController_ScrollPastThresholdPins(t *testing.T) {
	c := NewFollowController()

	c.OnUserScroll(11)
	assert.Equal(t, PinnedByUser, c.Mode())
	assert.False(t, c.ShouldAutoScroll())
}

func TestFollowController_ScrollWithinThresholdFollows(t *testing.T) {
	tests := []struct {
		name     string
		distance int
		want     FollowMode
	}{
		{"at bottom", 0, Following},
		{"exactly at threshold", 10, Following},
		{"just past threshold", 11, PinnedByUser},
		{"far away", 500, PinnedByUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFollowController()
			c.OnUserScroll(tt.distance)
			assert.Equal(t, tt.want, c.Mode())
		})
	}
}

func TestFollowController_ScrollBackResumesRegardlessOfPriorState(t *testing.T) {
	c := NewFollowController()

	c.OnUserScroll(50)
	assert.Equal(t, PinnedByUser, c.Mode())

	c.OnUserScroll(3)
	assert.Equal(t, Following, c.Mode())
}

func TestFollowController_ToggleFromPinnedScrollsOnce(t *testing.T) {
	c := NewFollowController()
	c.OnUserScroll(50)

	assert.True(t, c.Toggle(), "resuming via the control snaps to bottom")
	assert.Equal(t, Following, c.Mode())
}

func TestFollowController_ToggleFromFollowingPins(t *testing.T) {
	c := NewFollowController()

	assert.False(t, c.Toggle())
	assert.Equal(t, PinnedByUser, c.Mode())
}

func TestFollowController_ResetAlwaysFollows(t *testing.T) {
	c := NewFollowController()
	c.OnUserScroll(50)

	c.Reset()
	assert.Equal(t, Following, c.Mode())
	assert.True(t, c.ShouldAutoScroll())
}
