package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hirevoice/internal/broker"
	"hirevoice/internal/storage"
)

var testUpgrader = websocket.Upgrader{}

// wsTestServer speaks the provider side of the stream: it sends the given
// frames and then echoes the client's close handshake.
func wsTestServer(t *testing.T, gotQuery chan<- string, frames []storage.TranscriptEntry) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil {
			gotQuery <- r.URL.RawQuery
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
		// wait for the client close frame; ReadMessage surfaces it as an error
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// TestWebSocketOpenerSigned dials a signed URL verbatim and streams events.
func TestWebSocketOpenerSigned(t *testing.T) {
	frames := []storage.TranscriptEntry{
		{Role: "interviewer", Text: "Hello"},
		{Role: "candidate", Text: "Hi"},
	}
	srv := wsTestServer(t, nil, frames)
	defer srv.Close()

	opener := NewWebSocketOpener("")
	ch, err := opener.Open(context.Background(), broker.Credential{
		Type:      broker.CredentialSigned,
		SignedURL: wsURL(srv) + "?token=t",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var got []storage.TranscriptEntry
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case entry, ok := <-ch.Events():
			if !ok {
				t.Fatalf("stream closed early, got %d entries", len(got))
			}
			got = append(got, entry)
		case <-timeout:
			t.Fatalf("timed out, got %d entries", len(got))
		}
	}
	if got[0].Text != "Hello" || got[1].Text != "Hi" {
		t.Fatalf("entries out of order: %+v", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("missing timestamps should be filled in")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ch.Close(closeCtx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// TestWebSocketOpenerFallback dials the public endpoint with the agent id in
// the query string.
func TestWebSocketOpenerFallback(t *testing.T) {
	gotQuery := make(chan string, 1)
	srv := wsTestServer(t, gotQuery, nil)
	defer srv.Close()

	opener := NewWebSocketOpener(wsURL(srv))
	ch, err := opener.Open(context.Background(), broker.Credential{
		Type:    broker.CredentialFallback,
		AgentID: "agent from config",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ch.Close(ctx)
	}()

	select {
	case q := <-gotQuery:
		if q != "agent_id=agent+from+config" {
			t.Fatalf("query = %q", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the dial")
	}
}

// TestWebSocketOpenerFallbackNoAgent rejects a fallback credential without a
// target.
func TestWebSocketOpenerFallbackNoAgent(t *testing.T) {
	opener := NewWebSocketOpener("")
	if _, err := opener.Open(context.Background(), broker.Credential{Type: broker.CredentialFallback}); err == nil {
		t.Fatal("open should fail without an agent id")
	}
}

// TestWebSocketOpenerDialFailure reports a connection error for a dead
// endpoint.
func TestWebSocketOpenerDialFailure(t *testing.T) {
	opener := NewWebSocketOpener("")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := opener.Open(ctx, broker.Credential{
		Type:      broker.CredentialSigned,
		SignedURL: "ws://127.0.0.1:1/conversation",
	})
	if err == nil {
		t.Fatal("open should fail against a dead endpoint")
	}
}

// TestWebSocketChannelSkipsEmptyFrames drops keep-alive frames with no text.
func TestWebSocketChannelSkipsEmptyFrames(t *testing.T) {
	frames := []storage.TranscriptEntry{
		{Role: "interviewer", Text: ""},
		{Role: "interviewer", Text: "Real turn"},
	}
	srv := wsTestServer(t, nil, frames)
	defer srv.Close()

	opener := NewWebSocketOpener("")
	ch, err := opener.Open(context.Background(), broker.Credential{
		Type:      broker.CredentialSigned,
		SignedURL: wsURL(srv),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	select {
	case entry := <-ch.Events():
		if entry.Text != "Real turn" {
			t.Fatalf("first delivered entry = %+v, want the non-empty frame", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the real frame")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch.Close(ctx)
}
