package broadcast

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func fixedNow(ts int64) func() int64 {
	return func() int64 { return ts }
}

func TestSubscribeReceivesHelloAndPublishedEvent(t *testing.T) {
	hub := New(Config{MaxClients: 2, HeartbeatMs: 30_000, MaxFrameBytes: 4096}, nil, fixedNow(1_000))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var hello map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, "connected", hello["type"])

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish("governance_accept", map[string]any{"proposalId": "P01", "glyphId": "B01"})

	var event map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &event))
	require.Equal(t, "governance_accept", event["type"])
	require.Equal(t, "P01", event["proposalId"])
}

func TestSubscribeRefusedOverCapacity(t *testing.T) {
	hub := New(Config{MaxClients: 1, HeartbeatMs: 30_000, MaxFrameBytes: 4096}, nil, fixedNow(1_000))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer first.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	second, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	_, _, readErr := second.Read(ctx)
	require.Error(t, readErr)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(readErr))
}

func TestPingProducesTimestampedPong(t *testing.T) {
	hub := New(Config{MaxClients: 2, HeartbeatMs: 30_000, MaxFrameBytes: 4096}, nil, fixedNow(42))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var hello map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &hello))

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"type": "ping"}))

	var pong map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &pong))
	require.Equal(t, "pong", pong["type"])
	require.EqualValues(t, 42, pong["timestamp"])
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}
