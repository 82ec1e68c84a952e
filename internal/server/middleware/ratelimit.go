package middleware

import (
	"context"
	"strconv"

	"RelayGuard/internal/biz"
	pkglog "RelayGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// RateLimit returns a middleware enforcing the per-client sliding window.
// It runs after Identity so the window key is the resolved client identity.
// Rejections are cheap: the decision costs a few store round trips and no
// business logic runs for a limited client.
func RateLimit(limiter *biz.RateLimiterUseCase, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			clientID := ClientIDFromContext(ctx)

			decision, err := limiter.Admit(ctx, clientID)
			if err != nil {
				return nil, err
			}
			if tr, ok := transport.FromServerContext(ctx); ok {
				tr.ReplyHeader().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
				tr.ReplyHeader().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
				if !decision.ResetAt.IsZero() {
					tr.ReplyHeader().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
				}
			}
			if !decision.Allowed {
				logger.RateLimit("request rejected by rate limit",
					"client", pkglog.MaskKey(clientID),
					"current", decision.Current,
					"limit", decision.Limit,
					"request_id", pkglog.RequestIDFromContext(ctx))
				return nil, biz.ErrRateLimited(decision.RetryAfter)
			}
			if decision.Degraded {
				logger.Degraded("rate limit store unreachable, request admitted uncounted",
					"client", pkglog.MaskKey(clientID),
					"request_id", pkglog.RequestIDFromContext(ctx))
			}

			return handler(ctx, req)
		}
	}
}
