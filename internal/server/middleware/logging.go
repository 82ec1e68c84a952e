package middleware

import (
	"context"
	"time"

	pkglog "RelayGuard/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThreshold flags requests an operator should look at.
const slowRequestThreshold = 5 * time.Second

// Logging returns a middleware that logs one summary line per request,
// assigning a request ID that downstream log lines inherit via context.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					requestID = httpReq.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}
			ctx = pkglog.WithRequestID(ctx, requestID)

			reply, err := handler(ctx, req)

			durationMs := time.Since(startTime).Milliseconds()
			status := 200
			if err != nil {
				status = int(kerrors.FromError(err).Code)
			}

			logger.Request(method, path, status, durationMs,
				"request_id", requestID,
				"client", pkglog.MaskKey(ClientIDFromContext(ctx)),
			)
			if time.Since(startTime) > slowRequestThreshold {
				logger.Warnw("slow request detected",
					"request_id", requestID,
					"method", method,
					"path", path,
					"duration_ms", durationMs)
			}

			return reply, err
		}
	}
}
