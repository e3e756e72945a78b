package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/recyconnect/notify/internal/feed"
	"github.com/recyconnect/notify/internal/store"
)

// Bridge carries store events from their delivery goroutines into the
// bubbletea loop. Store callbacks push into it; the model drains it on a
// coalesced signal.
type Bridge struct {
	mu      sync.Mutex
	snap    store.Snapshot
	updated bool
	toasts  []feed.Notification
	signal  chan struct{}
}

// NewBridge constructs a bridge for async event delivery.
func NewBridge() *Bridge {
	return &Bridge{signal: make(chan struct{}, 1)}
}

// OnChange records the latest snapshot and emits a non-blocking signal.
// Registered with Store.Subscribe.
func (b *Bridge) OnChange(s store.Snapshot) {
	b.mu.Lock()
	b.snap = s
	b.updated = true
	b.mu.Unlock()
	b.wake()
}

// OnToast buffers a transient display request. Registered with
// Store.OnToast.
func (b *Bridge) OnToast(n feed.Notification) {
	b.mu.Lock()
	b.toasts = append(b.toasts, n)
	b.mu.Unlock()
	b.wake()
}

func (b *Bridge) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Drain returns the latest snapshot (if one arrived since the last drain)
// and all pending toasts, clearing the toast buffer.
func (b *Bridge) Drain() (snap store.Snapshot, updated bool, toasts []feed.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, updated = b.snap, b.updated
	b.updated = false

	if len(b.toasts) > 0 {
		toasts = make([]feed.Notification, len(b.toasts))
		copy(toasts, b.toasts)
		b.toasts = b.toasts[:0]
	}
	return snap, updated, toasts
}

// Wait blocks until there are events ready to drain.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		<-b.signal
		return refreshMsg{}
	}
}
