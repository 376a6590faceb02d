package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
)

// KeyFunc identifies the client a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over their rule's limit with 429 Too Many Requests.
// onReject, when set, is called with the request and its matched route.
func Middleware(l *Limiter, key KeyFunc, onReject func(r *http.Request, route string)) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := l.Allow(key(r), r.Method, r.URL.Path)
			if info.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			}
			if info.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if onReject != nil {
				rule := l.Match(r.Method, r.URL.Path)
				route := "default"
				if rule.Path != "" {
					route = rule.Method + " " + rule.Path
				}
				onReject(r, route)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(info.RetryAfter.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
		})
	}
}
