package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recyconnect/notify/internal/feed"
)

// fakeAPI is a scriptable Fetcher.
type fakeAPI struct {
	mu      sync.Mutex
	list    []feed.Notification
	unread  int
	listErr error
	markErr error

	// listGate, when set, blocks ListNotifications until closed.
	listGate chan struct{}

	marked chan feed.ID
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{marked: make(chan feed.ID, 16)}
}

func (f *fakeAPI) ListNotifications(ctx context.Context) ([]feed.Notification, error) {
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]feed.Notification, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeAPI) UnreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, id feed.ID) error {
	f.marked <- id
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markErr
}

func note(id feed.ID, msg string) feed.Notification {
	return feed.Notification{ID: id, Message: msg, CreatedAt: time.Now()}
}

func newTestStore(api Fetcher) *Store {
	return New(api, zerolog.Nop())
}

func TestInitialize_FreshSession(t *testing.T) {
	api := newFakeAPI()
	api.list = []feed.Notification{note("1", "welcome")}
	api.unread = 1

	s := newTestStore(api)
	require.NoError(t, s.Initialize(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.UnreadCount)
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, feed.ID("1"), snap.Notifications[0].ID)
}

func TestIngest_OrderingNewestFirst(t *testing.T) {
	s := newTestStore(newFakeAPI())

	s.Ingest(note("A", "a"))
	s.Ingest(note("B", "b"))
	s.Ingest(note("C", "c"))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 3)
	assert.Equal(t, feed.ID("C"), snap.Notifications[0].ID)
	assert.Equal(t, feed.ID("B"), snap.Notifications[1].ID)
	assert.Equal(t, feed.ID("A"), snap.Notifications[2].ID)
	assert.Equal(t, 3, snap.UnreadCount)
}

func TestIngest_PushRaisesBadgeAndToast(t *testing.T) {
	api := newFakeAPI()
	api.list = []feed.Notification{note("1", "old")}
	api.unread = 1

	s := newTestStore(api)

	var toasts []string
	s.OnToast(func(n feed.Notification) { toasts = append(toasts, n.Message) })

	require.NoError(t, s.Initialize(context.Background()))
	s.Ingest(note("2", "New booking"))

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.UnreadCount)
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, feed.ID("2"), snap.Notifications[0].ID)
	assert.Equal(t, feed.ID("1"), snap.Notifications[1].ID)
	assert.Equal(t, []string{"New booking"}, toasts)
}

func TestIngest_DuplicateIsNoOp(t *testing.T) {
	s := newTestStore(newFakeAPI())

	toastCount := 0
	s.OnToast(func(feed.Notification) { toastCount++ })

	s.Ingest(note("2", "once"))
	s.Ingest(note("2", "again"))

	snap := s.Snapshot()
	assert.Len(t, snap.Notifications, 1)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, 1, toastCount, "duplicate push must not toast again")
}

func TestClearUnread_OptimisticAndFireAndForget(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	s.Ingest(note("1", "a"))
	s.Ingest(note("2", "b"))

	s.ClearUnread()

	// Local state flips before any server acknowledgement.
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.UnreadCount)
	for _, n := range snap.Notifications {
		assert.True(t, n.IsRead)
	}

	// One mark-as-read request per previously unread entry.
	got := map[feed.ID]bool{}
	for range 2 {
		select {
		case id := <-api.marked:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for mark-as-read requests")
		}
	}
	assert.True(t, got["1"] && got["2"])
}

func TestClearUnread_FailureKeepsLocalState(t *testing.T) {
	api := newFakeAPI()
	api.markErr = errors.New("boom")
	s := newTestStore(api)

	s.Ingest(note("1", "a"))
	s.ClearUnread()

	select {
	case <-api.marked:
	case <-time.After(2 * time.Second):
		t.Fatal("mark-as-read was never attempted")
	}

	// No rollback on failure.
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.UnreadCount)
	assert.True(t, snap.Notifications[0].IsRead)
}

func TestClearUnread_SkipsAlreadyRead(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	read := note("1", "a")
	read.IsRead = true
	api.list = []feed.Notification{read}
	require.NoError(t, s.Initialize(context.Background()))

	s.Ingest(note("2", "b"))
	s.ClearUnread()

	select {
	case id := <-api.marked:
		assert.Equal(t, feed.ID("2"), id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mark-as-read")
	}
	select {
	case id := <-api.marked:
		t.Fatalf("unexpected mark-as-read for %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTeardown_ClearsEverything(t *testing.T) {
	api := newFakeAPI()
	api.list = []feed.Notification{note("1", "a"), note("2", "b")}
	api.unread = 2

	s := newTestStore(api)
	require.NoError(t, s.Initialize(context.Background()))
	s.Ingest(note("3", "c"))

	s.Teardown()

	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestInitialize_MergesPushArrivedDuringFetch(t *testing.T) {
	api := newFakeAPI()
	api.list = []feed.Notification{note("1", "fetched"), note("2", "fetched")}
	api.unread = 2
	api.listGate = make(chan struct{})

	s := newTestStore(api)

	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()

	// Push lands while the fetch is still in flight: one brand new id and
	// one the server also returns.
	s.Ingest(note("3", "pushed"))
	s.Ingest(note("2", "pushed dup"))

	close(api.listGate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 3)
	assert.Equal(t, feed.ID("3"), snap.Notifications[0].ID, "pushed entry must survive the merge at the head")
	assert.Equal(t, 3, snap.UnreadCount, "server count plus the one push the server did not know about")
}

func TestInitialize_ClearDuringFetchDoesNotResurrectBadge(t *testing.T) {
	api := newFakeAPI()
	api.list = []feed.Notification{note("1", "fetched"), note("2", "fetched")}
	api.unread = 2
	api.listGate = make(chan struct{})

	s := newTestStore(api)

	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()

	// The user gets a push and opens the bell while the fetch is still in
	// flight: the pushed entry is flipped to read before the merge.
	s.Ingest(note("3", "pushed"))
	s.ClearUnread()

	close(api.listGate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 3)
	assert.Equal(t, feed.ID("3"), snap.Notifications[0].ID)
	assert.True(t, snap.Notifications[0].IsRead, "the cleared entry stays read")
	assert.Equal(t, 2, snap.UnreadCount, "badge must not count the entry the user already cleared")
}

func TestInitialize_AfterTeardownIsDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.list = []feed.Notification{note("1", "stale")}
	api.unread = 1
	api.listGate = make(chan struct{})

	s := newTestStore(api)

	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()

	s.Teardown()
	close(api.listGate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestInitialize_FetchFailureLeavesStateEmpty(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("backend down")

	s := newTestStore(api)
	err := s.Initialize(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestSubscribe_SeesEveryChange(t *testing.T) {
	s := newTestStore(newFakeAPI())

	var mu sync.Mutex
	var badges []int
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		badges = append(badges, snap.UnreadCount)
		mu.Unlock()
	})

	s.Ingest(note("1", "a"))
	s.Ingest(note("2", "b"))
	s.ClearUnread()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 0}, badges)
}

func TestSubscribe_DeliveryNeverMovesBackwards(t *testing.T) {
	s := newTestStore(newFakeAPI())

	var mu sync.Mutex
	var badges []int
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		badges = append(badges, snap.UnreadCount)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Ingest(note(feed.ID(fmt.Sprintf("n-%d", i)), "x"))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, badges)
	for i := 1; i < len(badges); i++ {
		assert.GreaterOrEqual(t, badges[i], badges[i-1], "stale snapshot delivered after a newer one")
	}
	assert.Equal(t, 50, badges[len(badges)-1], "the last delivery must carry the newest state")
}

func TestSetConnectionState(t *testing.T) {
	s := newTestStore(newFakeAPI())

	changes := 0
	s.Subscribe(func(Snapshot) { changes++ })

	s.SetConnectionState(feed.StateConnecting)
	s.SetConnectionState(feed.StateConnected)
	s.SetConnectionState(feed.StateConnected) // no-op

	assert.Equal(t, feed.StateConnected, s.Snapshot().State)
	assert.Equal(t, 2, changes)
}
