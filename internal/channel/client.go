// Package channel maintains the live push connection that delivers
// notifications to the store as they happen on the backend.
package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/recyconnect/notify/internal/feed"
)

// Ingestor receives everything the channel produces. *store.Store
// satisfies it.
type Ingestor interface {
	Ingest(n feed.Notification)
	SetConnectionState(state feed.ConnectionState)
}

// subscribeFrame is the first frame sent after the handshake, binding the
// connection to the user's private queue.
type subscribeFrame struct {
	Type        string `json:"type"`
	Destination string `json:"destination"`
}

// QueueDestination returns the per-identity address for a user's
// notification queue.
func QueueDestination(userID string) string {
	return "/queue/notifications/" + userID
}

// Client owns at most one live websocket connection per session. On
// transport failure it retries after a fixed delay until Disconnect is
// called: a static delay, not exponential backoff, with no retry ceiling.
// A permanently unreachable endpoint therefore retries forever, which is an
// accepted simplification.
type Client struct {
	url   string
	delay time.Duration
	store Ingestor
	log   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Client dialing the given websocket endpoint.
func New(url string, reconnectDelay time.Duration, store Ingestor, log zerolog.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Client{
		url:   url,
		delay: reconnectDelay,
		store: store,
		log:   log.With().Str("component", "channel").Logger(),
	}
}

// Connect opens the channel scoped to the given identity and starts
// delivering inbound events to the store. Establishment is asynchronous:
// failures surface through the store's connection state, never as an error
// here. Calling Connect while already connected is a no-op.
func (c *Client) Connect(ctx context.Context, userID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.log.Debug().Msg("connect ignored, channel already open")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, userID, token, c.done)
}

// Disconnect tears down the connection and its subscription. Idempotent;
// safe on every exit path.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run is the connect/read/retry loop. It exits only when ctx is cancelled.
func (c *Client) run(ctx context.Context, userID, token string, done chan struct{}) {
	defer close(done)
	defer c.store.SetConnectionState(feed.StateDisconnected)

	for {
		c.store.SetConnectionState(feed.StateConnecting)

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Str("url", c.url).Msg("channel dial failed, retrying")
			c.store.SetConnectionState(feed.StateDisconnected)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		if err := conn.WriteJSON(subscribeFrame{Type: "subscribe", Destination: QueueDestination(userID)}); err != nil {
			c.log.Warn().Err(err).Msg("channel subscribe failed, retrying")
			conn.Close()
			c.store.SetConnectionState(feed.StateDisconnected)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.store.SetConnectionState(feed.StateConnected)
		c.log.Info().Str("user", userID).Msg("channel connected")

		c.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Msg("channel dropped, reconnecting after delay")
		c.store.SetConnectionState(feed.StateDisconnected)
		if !c.sleep(ctx) {
			return
		}
	}
}

// readLoop ingests frames until the connection dies or ctx is cancelled.
// A frame that does not parse as a notification is dropped with a
// diagnostic; it never takes down the handler or the connection.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Debug().Err(err).Msg("channel read ended")
			}
			return
		}

		var n feed.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			c.log.Warn().Err(err).Str("payload", string(data)).Msg("malformed push payload dropped")
			continue
		}
		// The id is the dedup key; a frame without one cannot be ingested.
		if n.ID == "" {
			c.log.Warn().Str("payload", string(data)).Msg("push payload without id dropped")
			continue
		}
		c.store.Ingest(n)
	}
}

// sleep waits one reconnect delay. Returns false if ctx ended first.
func (c *Client) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
