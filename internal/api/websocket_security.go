package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// maxWSMessageSize caps one inbound selection message. Selections are
	// tiny; anything larger is abuse.
	maxWSMessageSize = 4096

	// wsMessagesPerSecond is the per-client selection rate limit.
	wsMessagesPerSecond = 20
)

// checkWSOrigin builds the upgrader's origin check. An empty allow list
// admits every origin, matching the REST CORS default; a populated list
// admits exactly those origins. Requests without an Origin header are
// non-browser clients and always pass.
func checkWSOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser client.
			return true
		}
		if len(allowedOrigins) == 0 {
			return true
		}
		return isOriginAllowed(origin, allowedOrigins)
	}
}

// isOriginAllowed matches an Origin header against the allow list,
// comparing scheme and host rather than raw strings so a trailing slash or
// mixed case cannot bypass the check.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	for _, allowed := range allowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if strings.EqualFold(originURL.Scheme, allowedURL.Scheme) &&
			strings.EqualFold(originURL.Host, allowedURL.Host) {
			return true
		}
	}
	return false
}

// wsAuthorized checks the upgrade request's credential. Browsers cannot
// set headers on a WebSocket handshake, so the token query parameter is
// accepted alongside the Authorization header.
func wsAuthorized(r *http.Request, cfg AuthConfig) bool {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token != "" && constantTimeCompare(token, cfg.Token)
}

// messageRateBucket is a per-client token bucket for inbound messages.
type messageRateBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newMessageRateBucket(messagesPerSecond int) *messageRateBucket {
	capacity := float64(messagesPerSecond)
	return &messageRateBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: capacity,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available.
func (mb *messageRateBucket) allow() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(mb.lastRefill).Seconds()
	mb.tokens = min(mb.capacity, mb.tokens+elapsed*mb.refillRate)
	mb.lastRefill = now

	if mb.tokens >= 1.0 {
		mb.tokens--
		return true
	}
	return false
}
