// Package store holds the single authoritative in-memory notification state
// for a session. All mutation funnels through Initialize, Ingest,
// ClearUnread and Teardown; surfaces only ever read snapshots.
package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/recyconnect/notify/internal/feed"
)

// Fetcher is the HTTP collaborator the store pulls server truth from.
// *api.Client satisfies it.
type Fetcher interface {
	ListNotifications(ctx context.Context) ([]feed.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id feed.ID) error
}

// Snapshot is the read-only view handed to surfaces.
type Snapshot struct {
	// Notifications is ordered newest-first.
	Notifications []feed.Notification
	UnreadCount   int
	State         feed.ConnectionState

	// seq orders deliveries: a snapshot is superseded by any later one.
	seq uint64
}

// Store is the session-scoped notification state. Mutations are serialized
// by a mutex; one fully completes before the next begins.
type Store struct {
	api Fetcher
	log zerolog.Logger

	mu            sync.Mutex
	notifications []feed.Notification
	unread        int
	state         feed.ConnectionState
	// generation is bumped on every Teardown so async completions started
	// under an earlier session are discarded instead of applied.
	generation uint64
	// seq stamps delivery snapshots in mutation order.
	seq uint64

	// deliverMu serializes listener delivery; delivered is the stamp of
	// the newest snapshot handed out.
	deliverMu sync.Mutex
	delivered uint64

	onChange []func(Snapshot)
	onToast  []func(feed.Notification)
}

// New creates an empty Store for a fresh session.
func New(api Fetcher, log zerolog.Logger) *Store {
	return &Store{
		api:   api,
		log:   log.With().Str("component", "store").Logger(),
		state: feed.StateDisconnected,
	}
}

// Subscribe registers a listener invoked after every state change with a
// fresh snapshot. Must be called before the store starts receiving events.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// OnToast registers a listener invoked once per newly ingested notification,
// feeding the transient toast surface.
func (s *Store) OnToast(fn func(feed.Notification)) {
	s.mu.Lock()
	s.onToast = append(s.onToast, fn)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	out := make([]feed.Notification, len(s.notifications))
	copy(out, s.notifications)
	return Snapshot{Notifications: out, UnreadCount: s.unread, State: s.state}
}

// changedLocked captures a stamped snapshot for delivery after a mutation.
func (s *Store) changedLocked() Snapshot {
	s.seq++
	snap := s.snapshotLocked()
	snap.seq = s.seq
	return snap
}

// Initialize fetches the full notification list and the authoritative
// unread count, then installs them. Called once per successful
// authentication. Push events ingested while the fetch was in flight are
// merged in rather than overwritten: they stay at the head of the list and
// each one not already known to the server adds one to the unread count.
// On fetch failure the state is left as it was and no retry is scheduled.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	fetched, err := s.api.ListNotifications(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("initial notification fetch failed")
		return err
	}
	serverUnread, err := s.api.UnreadCount(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("initial unread count fetch failed")
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		// Session tore down while the fetch was outstanding.
		s.mu.Unlock()
		s.log.Debug().Msg("discarding initial fetch for ended session")
		return nil
	}

	known := make(map[feed.ID]struct{}, len(fetched))
	for _, n := range fetched {
		known[n.ID] = struct{}{}
	}

	// Anything already in the store arrived over the channel during the
	// fetch; it is newer than everything the server returned.
	merged := make([]feed.Notification, 0, len(s.notifications)+len(fetched))
	extra := 0
	for _, n := range s.notifications {
		if _, dup := known[n.ID]; dup {
			continue
		}
		merged = append(merged, n)
		if !n.IsRead {
			extra++
		}
	}
	merged = append(merged, fetched...)

	s.notifications = merged
	s.unread = serverUnread + extra
	snap := s.changedLocked()
	s.mu.Unlock()

	s.log.Info().
		Int("fetched", len(fetched)).
		Int("merged_pushed", extra).
		Int("unread", snap.UnreadCount).
		Msg("notification state initialized")

	s.notifyChange(snap)
	return nil
}

// Ingest inserts a pushed notification. Delivery is at-least-once, so a
// duplicate id is a no-op: exactly one entry and exactly one unread
// increment per id.
func (s *Store) Ingest(n feed.Notification) {
	s.mu.Lock()
	for _, existing := range s.notifications {
		if existing.ID == n.ID {
			s.mu.Unlock()
			s.log.Debug().Str("id", string(n.ID)).Msg("duplicate push ignored")
			return
		}
	}
	s.notifications = append([]feed.Notification{n}, s.notifications...)
	s.unread++
	snap := s.changedLocked()
	toasts := s.onToast
	s.mu.Unlock()

	s.log.Debug().Str("id", string(n.ID)).Msg("notification ingested")

	for _, fn := range toasts {
		fn(n)
	}
	s.notifyChange(snap)
}

// ClearUnread zeroes the badge and optimistically flips every loaded unread
// notification to read, then issues one asynchronous mark-as-read request
// per flipped entry. The local flags are not rolled back if a request later
// fails; the failure is only logged. Requests may complete in any order.
func (s *Store) ClearUnread() {
	s.mu.Lock()
	s.unread = 0
	var ids []feed.ID
	for i := range s.notifications {
		if !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			ids = append(ids, s.notifications[i].ID)
		}
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notifyChange(snap)

	for _, id := range ids {
		go func(id feed.ID) {
			if err := s.api.MarkRead(context.Background(), id); err != nil {
				s.log.Warn().Err(err).Str("id", string(id)).Msg("mark-as-read failed, local state kept")
			}
		}(id)
	}
}

// SetConnectionState records the live channel's state for surfaces.
func (s *Store) SetConnectionState(state feed.ConnectionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notifyChange(snap)
}

// Teardown clears all in-memory state. Called on logout. Fetches still in
// flight for the old session are discarded when they complete.
func (s *Store) Teardown() {
	s.mu.Lock()
	s.generation++
	s.notifications = nil
	s.unread = 0
	snap := s.changedLocked()
	s.mu.Unlock()

	s.log.Info().Msg("notification state torn down")
	s.notifyChange(snap)
}

// notifyChange hands a snapshot to subscribers. Delivery is serialized and
// ordered by stamp: a snapshot older than one already delivered is dropped,
// so listeners never observe state moving backwards.
func (s *Store) notifyChange(snap Snapshot) {
	s.mu.Lock()
	listeners := s.onChange
	s.mu.Unlock()

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if snap.seq <= s.delivered {
		return
	}
	s.delivered = snap.seq
	for _, fn := range listeners {
		fn(snap)
	}
}
