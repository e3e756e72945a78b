package stubserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recyconnect/notify/internal/api"
	"github.com/recyconnect/notify/internal/channel"
	"github.com/recyconnect/notify/internal/feed"
	"github.com/recyconnect/notify/internal/session"
	"github.com/recyconnect/notify/internal/store"
	"github.com/recyconnect/notify/internal/stubserver"
)

// tokenCreds satisfies session.Accessor with a token obtained from the
// stub's own login endpoint.
type tokenCreds struct {
	token string
	id    string
	role  string
}

func (c *tokenCreds) Token() (string, error) {
	if c.token == "" {
		return "", session.ErrNotAuthenticated
	}
	return c.token, nil
}

func (c *tokenCreds) Identity() (session.Identity, error) {
	if c.token == "" {
		return session.Identity{}, session.ErrNotAuthenticated
	}
	return session.Identity{UserID: c.id, Role: c.role}, nil
}

func (c *tokenCreds) Authenticated() bool { return c.token != "" }

func startStub(t *testing.T) (*httptest.Server, *stubserver.Server) {
	t.Helper()
	s := stubserver.New(stubserver.Options{Secret: "test-secret"})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, s
}

// login goes through the real client and fills in the identity from the
// issued token.
func login(t *testing.T, baseURL, email string) (*api.Client, *tokenCreds) {
	t.Helper()

	creds := &tokenCreds{}
	client := api.New(baseURL, 2*time.Second, creds)

	cred, err := client.Login(context.Background(), email, "whatever")
	require.NoError(t, err)
	creds.token = cred.Token
	creds.role = cred.Role

	u, err := client.Me(context.Background())
	require.NoError(t, err)
	creds.id = strconv.FormatInt(u.ID, 10)
	return client, creds
}

func demoNotify(t *testing.T, baseURL, email, message string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "message": message})
	resp, err := http.Post(baseURL+"/demo/notify", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginIssuesWorkingToken(t *testing.T) {
	srv, _ := startStub(t)

	client, creds := login(t, srv.URL, "ava@example.com")
	assert.Equal(t, "USER", creds.role)

	u, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ava@example.com", u.Email)
}

func TestNgoEmailGetsNgoRole(t *testing.T) {
	srv, _ := startStub(t)

	_, creds := login(t, srv.URL, "ngo-ecocycle@example.com")
	assert.Equal(t, "NGO", creds.role)
}

func TestRestFlow(t *testing.T) {
	srv, _ := startStub(t)
	client, _ := login(t, srv.URL, "ava@example.com")
	ctx := context.Background()

	list, err := client.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	demoNotify(t, srv.URL, "ava@example.com", "Pickup confirmed")
	demoNotify(t, srv.URL, "ava@example.com", "Review received")

	list, err = client.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Review received", list[0].Message, "newest first")

	count, err := client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, client.MarkRead(ctx, list[0].ID))

	count, err = client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkReadUnknownIDIsNotFound(t *testing.T) {
	srv, _ := startStub(t)
	client, _ := login(t, srv.URL, "ava@example.com")

	err := client.MarkRead(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNotificationsAreScopedPerUser(t *testing.T) {
	srv, _ := startStub(t)
	ava, _ := login(t, srv.URL, "ava@example.com")
	ben, _ := login(t, srv.URL, "ben@example.com")
	ctx := context.Background()

	demoNotify(t, srv.URL, "ava@example.com", "only for ava")

	list, err := ava.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = ben.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, _ := startStub(t)

	resp, err := http.Get(srv.URL + "/api/notifications")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestEndToEndLivePush wires the real client stack against the stub:
// login over REST, initial sync through the store, live delivery over the
// websocket, then mark-as-read back through REST.
func TestEndToEndLivePush(t *testing.T) {
	srv, _ := startStub(t)
	client, creds := login(t, srv.URL, "ava@example.com")
	ctx := context.Background()

	demoNotify(t, srv.URL, "ava@example.com", "seeded before login")

	st := store.New(client, zerolog.Nop())
	require.NoError(t, st.Initialize(ctx))
	assert.Equal(t, 1, st.Snapshot().UnreadCount)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ch := channel.New(wsURL, 50*time.Millisecond, st, zerolog.Nop())
	ch.Connect(ctx, creds.id, creds.token)
	defer ch.Disconnect()

	require.Eventually(t, func() bool {
		return st.Snapshot().State == feed.StateConnected
	}, 3*time.Second, 20*time.Millisecond, "channel never reached the stub")

	demoNotify(t, srv.URL, "ava@example.com", "pushed live")

	require.Eventually(t, func() bool {
		snap := st.Snapshot()
		return snap.UnreadCount == 2 && len(snap.Notifications) == 2
	}, 3*time.Second, 20*time.Millisecond, "live push never reached the store")

	snap := st.Snapshot()
	assert.Equal(t, "pushed live", snap.Notifications[0].Message)

	st.ClearUnread()
	assert.Equal(t, 0, st.Snapshot().UnreadCount)

	require.Eventually(t, func() bool {
		count, err := client.UnreadCount(ctx)
		return err == nil && count == 0
	}, 3*time.Second, 20*time.Millisecond, "server-side unread count never drained")
}
