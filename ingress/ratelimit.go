package ingress

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
)

// senderRateLimiter enforces spec.md §7's rate_limited error kind on a
// per-sender-address basis, adapted from gateway/middleware.RateLimiter: the
// teacher keys its token buckets on client IP/API-key, we key on the agent
// address carried in the request body since glyphmesh has no API-key layer.
type senderRateLimiter struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newSenderRateLimiter(perSecond float64, burst int) *senderRateLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &senderRateLimiter{perSecond: perSecond, burst: burst, visitors: make(map[string]*rate.Limiter)}
}

func (rl *senderRateLimiter) allow(key string) bool {
	if key == "" {
		key = "anonymous"
	}
	rl.mu.Lock()
	limiter, ok := rl.visitors[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.perSecond), rl.burst)
		rl.visitors[key] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// cleanupLoop discards every visitor bucket on each tick, busy or idle, so
// long-running servers don't accumulate one limiter per distinct sender
// forever; a sender's next request after a sweep starts from a full bucket.
func (rl *senderRateLimiter) cleanupLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			rl.visitors = make(map[string]*rate.Limiter)
			rl.mu.Unlock()
		}
	}
}

// StartRateLimiterCleanup runs the send-rate-limiter's bucket sweep until
// stop is closed. Call this once from main after New.
func (s *Server) StartRateLimiterCleanup(interval time.Duration, stop <-chan struct{}) {
	s.sendLimiter.cleanupLoop(interval, stop)
}

// withSendRateLimit gates POST /send per spec.md §7's rate_limited kind.
// The sender field is read from the already-buffered body by peeking the
// JSON, rather than consuming r.Body, so handleSend still sees a fresh
// reader.
func (s *Server) withSendRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sender := peekSender(r)
		if !s.sendLimiter.allow(sender) {
			writeError(w, gerrors.New(gerrors.KindRateLimited, "too many send requests for this sender"), map[string]any{"sender": sender})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peekSender reads the "sender" field out of the request body without
// consuming it, restoring r.Body so the downstream handler still decodes a
// complete request.
func peekSender(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var peek struct {
		Sender string `json:"sender"`
	}
	_ = json.Unmarshal(body, &peek)
	return peek.Sender
}
