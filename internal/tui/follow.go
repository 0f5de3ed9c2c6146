package tui

// FollowMode says whether the trajectory view tracks new content.
type FollowMode int

const (
	// Following auto-scrolls to the bottom when new records arrive.
	Following FollowMode = iota
	// PinnedByUser leaves the view where the user scrolled it.
	PinnedByUser
)

func (m FollowMode) String() string {
	if m == Following {
		return "following"
	}
	return "pinned"
}

// followThreshold is how many lines above the bottom the view may sit
// before a user scroll counts as pinning.
const followThreshold = 10

// FollowController decides when the trajectory viewport snaps to the
// bottom. User scrolls past the threshold pin the view; scrolling back
// within it, toggling the control, or switching sessions resume following.
type FollowController struct {
	mode FollowMode
}

// NewFollowController starts out following.
func NewFollowController() *FollowController {
	return &FollowController{mode: Following}
}

// Mode returns the current mode.
func (c *FollowController) Mode() FollowMode {
	return c.mode
}

// ShouldAutoScroll reports whether new content should snap the view down.
func (c *FollowController) ShouldAutoScroll() bool {
	return c.mode == Following
}

// OnUserScroll records a user-initiated scroll that left the view
// distanceFromBottom lines above the end of the content.
func (c *FollowController) OnUserScroll(distanceFromBottom int) {
	if distanceFromBottom > followThreshold {
		c.mode = PinnedByUser
	} else {
		c.mode = Following
	}
}

// Toggle flips the mode. It returns true when the caller should scroll to
// the bottom once, which happens on the pinned-to-following transition.
func (c *FollowController) Toggle() bool {
	if c.mode == PinnedByUser {
		c.mode = Following
		return true
	}
	c.mode = PinnedByUser
	return false
}

// Reset puts the controller back in following. Called on session switch.
func (c *FollowController) Reset() {
	c.mode = Following
}
