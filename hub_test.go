package pdfagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"ieee-pdf-agent/internal/logger"
)

// dialHub starts a hub, serves it over a test server, and connects one
// client. The returned conn has read deadlines armed.
func dialHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(logger.NewDiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return hub, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &env))
	return env.Event, env.Data
}

func TestHub_GreetsAndDeliversEvents(t *testing.T) {
	hub, conn := dialHub(t)

	event, data := readEnvelope(t, conn)
	require.Equal(t, "connected", event)
	require.Contains(t, string(data), "Connected to PDF Agent")

	// Reading the greeting guarantees the client is registered, so the
	// published events below cannot be missed.
	published := []StatusEvent{
		{SessionID: "s1", Filename: "draft.md", Status: StatusProcessing, Message: "Starting conversion..."},
		{SessionID: "s1", Filename: "draft.md", Status: StatusCompleted, Message: "done", PDFPath: "output/draft_IEEE.pdf"},
	}
	for _, ev := range published {
		hub.Publish(ev)
	}

	for _, want := range published {
		event, data := readEnvelope(t, conn)
		require.Equal(t, "conversion_status", event)

		var got StatusEvent
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, want, got)
	}
}

func TestHub_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub(logger.NewDiscardLogger())
	// Run is intentionally not started: the broadcast buffer absorbs
	// events, then Publish must drop instead of blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < broadcastBuf*2; i++ {
			hub.Publish(StatusEvent{SessionID: "s1", Filename: "a.md", Status: StatusProcessing})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no consumer")
	}
}

func TestHub_ShutdownUnblocksClients(t *testing.T) {
	hub := NewHub(logger.NewDiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	readEnvelope(t, conn)

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop after cancellation")
	}

	// The connected client is torn down instead of lingering on an
	// unregister send nobody is reading.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// A connection arriving after shutdown closes promptly instead of
	// blocking in the register handshake.
	late, lateResp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if lateResp != nil && lateResp.Body != nil {
		_ = lateResp.Body.Close()
	}
	t.Cleanup(func() { _ = late.Close() })
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	require.Error(t, err)
}
