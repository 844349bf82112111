// Package broadcast is the agora fan-out fabric: a subscriber registry plus a
// single publish(event) entry point used by both the message pipeline and
// governance (spec.md §4.5).
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Config holds the design-level constants named in spec.md §9 that govern
// the broadcast fabric.
type Config struct {
	MaxClients    int
	HeartbeatMs   int64
	MaxFrameBytes int64
}

// DefaultConfig returns spec.md §9's documented defaults.
func DefaultConfig() Config {
	return Config{MaxClients: 100, HeartbeatMs: 30_000, MaxFrameBytes: 4096}
}

// SubscriberCounter is the narrow metrics port the hub reports live
// subscriber counts through.
type SubscriberCounter interface {
	SetBroadcastSubscribers(n int)
}

// subscriber is one connected /stream client. send is a small buffered
// channel so Publish never blocks on a slow reader: a full channel means the
// subscriber is dropped rather than stalling the publisher (spec.md §5's
// non-blocking back-pressure policy).
type subscriber struct {
	id     uint64
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) close(code websocket.StatusCode, reason string) {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close(code, reason)
	})
}

// Hub is the live registry of connected subscribers. All mutation happens
// under mu, the Go-native equivalent of spec.md §5's "mutated only by
// subscribe/disconnect handlers" cooperative-task assumption.
type Hub struct {
	cfg     Config
	metrics SubscriberCounter
	now     func() int64

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

// New constructs an empty Hub. metrics may be nil.
func New(cfg Config, metrics SubscriberCounter, now func() int64) *Hub {
	return &Hub{cfg: cfg, metrics: metrics, now: now, subs: make(map[uint64]*subscriber)}
}

// Count returns the current number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it
// as a subscriber, refusing when the MAX_CLIENTS cap is already reached.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if len(h.subs) >= h.cfg.MaxClients {
		h.mu.Unlock()
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err == nil {
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber capacity exceeded")
		}
		return
	}
	id := h.nextID
	h.nextID++
	h.mu.Unlock()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	conn.SetReadLimit(h.cfg.MaxFrameBytes + 1)

	sub := &subscriber{id: id, conn: conn, send: make(chan []byte, 16), closed: make(chan struct{})}

	h.mu.Lock()
	h.subs[id] = sub
	count := len(h.subs)
	h.mu.Unlock()
	h.reportCount(count)

	h.sendHello(sub, count)

	ctx := r.Context()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); h.writePump(ctx, sub) }()
	go func() { defer wg.Done(); h.readPump(ctx, sub) }()
	wg.Wait()

	h.unregister(id)
}

func (h *Hub) sendHello(sub *subscriber, count int) {
	hello, err := json.Marshal(map[string]any{"type": "connected", "subscribers": count})
	if err != nil {
		return
	}
	select {
	case sub.send <- hello:
	default:
	}
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	count := len(h.subs)
	h.mu.Unlock()
	h.reportCount(count)
}

func (h *Hub) reportCount(n int) {
	if h.metrics != nil {
		h.metrics.SetBroadcastSubscribers(n)
	}
}

// writePump drains sub.send to the connection and runs the heartbeat ping on
// a ticker; it terminates a subscriber that never responds within roughly
// two heartbeat intervals (spec.md §5's ≤60s-since-last-pong bound, assuming
// a 30s heartbeat).
func (h *Hub) writePump(ctx context.Context, sub *subscriber) {
	interval := time.Duration(h.cfg.HeartbeatMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			sub.close(websocket.StatusNormalClosure, "context done")
			return
		case <-sub.closed:
			return
		case msg := <-sub.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := sub.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				sub.close(websocket.StatusInternalError, "write failed")
				return
			}
		case now := <-ticker.C:
			if now.Sub(lastPong) > 2*interval {
				sub.close(websocket.StatusPolicyViolation, "heartbeat timeout")
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := sub.conn.Ping(pingCtx)
			cancel()
			if err == nil {
				lastPong = time.Now()
			}
		}
	}
}

// frameMessage is the inbound shape accepted on /stream: a client-initiated
// ping, answered with a timestamped pong (spec.md §6.4).
type frameMessage struct {
	Type string `json:"type"`
}

func (h *Hub) readPump(ctx context.Context, sub *subscriber) {
	for {
		_, data, err := sub.conn.Read(ctx)
		if err != nil {
			sub.close(websocket.StatusNormalClosure, "read closed")
			return
		}
		if int64(len(data)) > h.cfg.MaxFrameBytes {
			h.sendError(sub, "too_large", "frame exceeds MAX_FRAME_BYTES")
			continue
		}
		var frame frameMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(sub, "invalid_input", "frame must be JSON")
			continue
		}
		if frame.Type == "ping" {
			pong, err := json.Marshal(map[string]any{"type": "pong", "timestamp": h.now()})
			if err != nil {
				continue
			}
			select {
			case sub.send <- pong:
			default:
			}
		}
	}
}

func (h *Hub) sendError(sub *subscriber, kind, message string) {
	body, err := json.Marshal(map[string]any{"type": "error", "error": kind, "message": message})
	if err != nil {
		return
	}
	select {
	case sub.send <- body:
	default:
	}
}

// Publish fans event out to every connected subscriber. It implements
// native/governance.Publisher and is also called directly by the send
// pipeline for "message" events. Iteration is over a snapshot slice so
// concurrent disconnects never race the publisher (spec.md §5).
func (h *Hub) Publish(kind string, payload map[string]any) {
	event := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		event[k] = v
	}
	event["type"] = kind

	data, err := json.Marshal(event)
	if err != nil {
		slog.Default().Error("broadcast: marshal event failed", "error", err, "kind", kind)
		return
	}

	h.mu.Lock()
	snapshot := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		select {
		case sub.send <- data:
		default:
			// Slow subscriber: disconnect it rather than block the publisher.
			go sub.close(websocket.StatusPolicyViolation, "subscriber too slow")
		}
	}
}

// PublishMessage is a typed convenience wrapper around Publish for data
// messages (spec.md §4.5's "message" event kind).
func (h *Hub) PublishMessage(glyph, sender, recipient string, timestamp int64, data map[string]any) {
	payload := map[string]any{"glyph": glyph, "sender": sender, "recipient": recipient, "timestamp": timestamp}
	if data != nil {
		payload["data"] = data
	}
	h.Publish("message", payload)
}
