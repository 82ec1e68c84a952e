// Package middleware provides HTTP middleware for client identity, request
// logging and distributed rate limiting.
package middleware

import (
	"context"
	"net"
	"strings"

	pkglog "RelayGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const clientIDContextKey contextKey = "client_id"

// Identity resolves the rate-limiting identity of each request and injects
// it into the context. Resolution order: Bearer token, X-API-Key header,
// client IP. The same identity always maps to the same limiter window no
// matter which instance serves the request.
func Identity(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			clientID := "anonymous"

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()

					if auth := httpReq.Header.Get("Authorization"); auth != "" {
						clientID = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
					}
					if clientID == "anonymous" || clientID == "" {
						if key := httpReq.Header.Get("X-API-Key"); key != "" {
							clientID = key
						}
					}
					if clientID == "anonymous" || clientID == "" {
						clientID = "ip:" + extractClientIP(httpReq)
					}

					logger.Debugw("client identity resolved",
						"client", pkglog.MaskKey(clientID),
						"user_agent", httpReq.Header.Get("User-Agent"))
				}
			}

			ctx = WithClientID(ctx, clientID)
			return handler(ctx, req)
		}
	}
}

// WithClientID injects the resolved client identity into the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}

// ClientIDFromContext extracts the client identity, or "anonymous" if the
// identity middleware did not run.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDContextKey).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

// extractClientIP returns the originating client IP, honoring proxy headers.
func extractClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if rip := req.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
