package tui

import (
	"time"

	"github.com/recyconnect/notify/internal/feed"
)

const toastTickInterval = 100 * time.Millisecond

type toast struct {
	notification feed.Notification
	remaining    time.Duration
}

// ToastController manages the lifecycle of active toasts: push, eviction,
// TTL countdown and dismissal. Stacking order is newest at the bottom.
type ToastController struct {
	ttl     time.Duration
	max     int
	toasts  []toast
	ticking bool
}

// NewToastController creates a controller with the given auto-dismiss TTL
// and stack cap.
func NewToastController(ttl time.Duration, max int) *ToastController {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if max <= 0 {
		max = 5
	}
	return &ToastController{ttl: ttl, max: max}
}

// Push adds a notification to the toast stack. Beyond the cap, the oldest
// toast is evicted.
func (c *ToastController) Push(n feed.Notification) {
	c.toasts = append(c.toasts, toast{notification: n, remaining: c.ttl})
	if len(c.toasts) > c.max {
		c.toasts = c.toasts[len(c.toasts)-c.max:]
	}
}

// Tick decrements the remaining TTL on all toasts by d and removes any
// that have expired.
func (c *ToastController) Tick(d time.Duration) {
	alive := c.toasts[:0]
	for _, t := range c.toasts {
		t.remaining -= d
		if t.remaining > 0 {
			alive = append(alive, t)
		}
	}
	c.toasts = alive
}

// DismissAll removes all active toasts.
func (c *ToastController) DismissAll() {
	c.toasts = c.toasts[:0]
}

// HasToasts returns true if there are any active toasts.
func (c *ToastController) HasToasts() bool {
	return len(c.toasts) > 0
}

// Toasts returns the current active toast slice.
func (c *ToastController) Toasts() []toast {
	return c.toasts
}

// Ticking returns whether the tick timer is currently running.
func (c *ToastController) Ticking() bool {
	return c.ticking
}

// SetTicking sets the tick timer state.
func (c *ToastController) SetTicking(v bool) {
	c.ticking = v
}
