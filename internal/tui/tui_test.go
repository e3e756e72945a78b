package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/recyconnect/notify/internal/feed"
	"github.com/recyconnect/notify/internal/store"
)

func toastNote(id, msg string) feed.Notification {
	return feed.Notification{ID: feed.ID(id), Message: msg}
}

func TestToastController_PushAndExpire(t *testing.T) {
	c := NewToastController(500*time.Millisecond, 5)

	c.Push(toastNote("1", "a"))
	c.Push(toastNote("2", "b"))
	assert.True(t, c.HasToasts())
	assert.Len(t, c.Toasts(), 2)

	c.Tick(400 * time.Millisecond)
	assert.Len(t, c.Toasts(), 2)

	c.Tick(200 * time.Millisecond)
	assert.False(t, c.HasToasts())
}

func TestToastController_EvictsOldestBeyondCap(t *testing.T) {
	c := NewToastController(time.Second, 2)

	c.Push(toastNote("1", "a"))
	c.Push(toastNote("2", "b"))
	c.Push(toastNote("3", "c"))

	toasts := c.Toasts()
	assert.Len(t, toasts, 2)
	assert.Equal(t, feed.ID("2"), toasts[0].notification.ID)
	assert.Equal(t, feed.ID("3"), toasts[1].notification.ID)
}

func TestToastController_DismissAll(t *testing.T) {
	c := NewToastController(time.Second, 5)
	c.Push(toastNote("1", "a"))
	c.DismissAll()
	assert.False(t, c.HasToasts())
}

func TestBridge_DrainCoalesces(t *testing.T) {
	b := NewBridge()

	b.OnChange(store.Snapshot{UnreadCount: 1})
	b.OnChange(store.Snapshot{UnreadCount: 2})
	b.OnToast(toastNote("1", "hello"))

	snap, updated, toasts := b.Drain()
	assert.True(t, updated)
	assert.Equal(t, 2, snap.UnreadCount, "only the latest snapshot matters")
	assert.Len(t, toasts, 1)

	_, updated, toasts = b.Drain()
	assert.False(t, updated)
	assert.Empty(t, toasts)
}

func TestBridge_WaitWakesOnSignal(t *testing.T) {
	b := NewBridge()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Wait()() // blocks until a signal arrives
	}()

	b.OnToast(toastNote("1", "wake up"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait never woke")
	}
}

func TestBadgeText_CapsAtNinePlus(t *testing.T) {
	assert.Equal(t, "1", badgeText(1))
	assert.Equal(t, "9", badgeText(9))
	assert.Equal(t, "9+", badgeText(10))
	assert.Equal(t, "9+", badgeText(42))
}

func TestRelTime(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "", relTime(time.Time{}, now))
	assert.Equal(t, "just now", relTime(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", relTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", relTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", relTime(now.Add(-49*time.Hour), now))
	assert.Equal(t, "Aug 1, 2026", relTime(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), now))
}
