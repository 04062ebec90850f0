package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hirevoice/internal/broker"
	"hirevoice/internal/storage"
)

// DefaultPublicEndpoint is the provider's public-agent conversation endpoint,
// used on the fallback path.
const DefaultPublicEndpoint = "wss://api.elevenlabs.io/v1/convai/conversation"

// WebSocketOpener opens the streaming channel for either credential type: a
// signed URL is dialed verbatim, the fallback path dials the public endpoint
// keyed by agent id. Both yield the same Channel.
type WebSocketOpener struct {
	publicEndpoint string
	dialer         *websocket.Dialer
}

func NewWebSocketOpener(publicEndpoint string) *WebSocketOpener {
	if publicEndpoint == "" {
		publicEndpoint = DefaultPublicEndpoint
	}
	return &WebSocketOpener{
		publicEndpoint: publicEndpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (o *WebSocketOpener) Open(ctx context.Context, cred broker.Credential) (Channel, error) {
	var target string
	switch cred.Type {
	case broker.CredentialSigned:
		target = cred.SignedURL
	case broker.CredentialFallback:
		if cred.AgentID == "" {
			return nil, fmt.Errorf("fallback credential without agent id")
		}
		target = o.publicEndpoint + "?agent_id=" + url.QueryEscape(cred.AgentID)
	default:
		return nil, fmt.Errorf("unknown credential type %q", cred.Type)
	}
	if target == "" {
		return nil, fmt.Errorf("credential carries no connection target")
	}

	conn, resp, err := o.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	ch := &wsChannel{
		conn:     conn,
		events:   make(chan storage.TranscriptEntry, 64),
		readDone: make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	events    chan storage.TranscriptEntry
	readDone  chan struct{}
	closeOnce sync.Once
}

func (c *wsChannel) Events() <-chan storage.TranscriptEntry {
	return c.events
}

// readLoop delivers provider events in arrival order until the peer closes
// the stream or the connection drops.
func (c *wsChannel) readLoop() {
	defer func() {
		close(c.events)
		close(c.readDone)
	}()

	for {
		var entry storage.TranscriptEntry
		if err := c.conn.ReadJSON(&entry); err != nil {
			return
		}
		if entry.Text == "" {
			// keep-alive or unrecognized frame
			continue
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now().UTC()
		}
		c.events <- entry
	}
}

// Close requests channel closure and waits for the peer's close
// acknowledgment within the context budget. A missing acknowledgment is
// reported but the connection is torn down either way.
func (c *wsChannel) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		if deadline, ok := ctx.Deadline(); ok {
			_ = c.conn.SetWriteDeadline(deadline)
		}
		writeErr := c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		select {
		case <-c.readDone:
		case <-ctx.Done():
			err = fmt.Errorf("close not acknowledged: %w", ctx.Err())
		}

		_ = c.conn.Close()
		if err == nil && writeErr != nil {
			err = writeErr
		}
	})
	return err
}
