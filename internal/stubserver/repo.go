package stubserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recyconnect/notify/internal/feed"
)

// listLimit mirrors the backend's page size (top 10, newest first).
const listLimit = 10

// repo is the in-memory notification table, newest-first per user.
type repo struct {
	mu     sync.Mutex
	byUser map[string][]feed.Notification
}

func newRepo() *repo {
	return &repo{byUser: make(map[string][]feed.Notification)}
}

// Create inserts a new unread notification and returns it.
func (r *repo) Create(userID, message string) feed.Notification {
	n := feed.Notification{
		ID:        feed.ID(uuid.NewString()),
		Message:   message,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.byUser[userID] = append([]feed.Notification{n}, r.byUser[userID]...)
	r.mu.Unlock()
	return n
}

// List returns up to listLimit notifications for a user, newest first.
func (r *repo) List(userID string) []feed.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.byUser[userID]
	limit := len(all)
	if limit > listLimit {
		limit = listLimit
	}
	out := make([]feed.Notification, limit)
	copy(out, all[:limit])
	return out
}

// UnreadCount counts unacknowledged notifications for a user.
func (r *repo) UnreadCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.byUser[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// MarkRead flips one notification to read. Reports whether the id existed.
func (r *repo) MarkRead(userID string, id feed.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byUser[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsRead = true
			return true
		}
	}
	return false
}
