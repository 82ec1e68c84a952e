// Package server assembles the HTTP transport.
package server

import (
	"context"

	"RelayGuard/internal/biz"
	"RelayGuard/internal/conf"
	"RelayGuard/internal/server/middleware"
	"RelayGuard/internal/service"
	pkglog "RelayGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Bootstrap,
	eventSvc *service.EventService,
	relaySvc *service.RelayService,
	breakerSvc *service.BreakerService,
	limiter *biz.RateLimiterUseCase,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Identity(logHelper),
			middleware.Logging(logHelper),
			middleware.RateLimit(limiter, logHelper),
		),
	}
	if c.Server.Http.Network != "" {
		opts = append(opts, http.Network(c.Server.Http.Network))
	}
	if c.Server.Http.Addr != "" {
		opts = append(opts, http.Address(c.Server.Http.Addr))
	}
	if c.Server.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Server.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerRoutes(srv, eventSvc, relaySvc, breakerSvc)

	return srv
}

func registerRoutes(srv *http.Server, eventSvc *service.EventService, relaySvc *service.RelayService, breakerSvc *service.BreakerService) {
	r := srv.Route("/")

	r.POST("/v1/events", func(ctx http.Context) error {
		var req service.SubmitEventRequest
		if err := ctx.Bind(&req); err != nil {
			return biz.ErrValidation("malformed request body")
		}
		h := ctx.Middleware(func(ctx context.Context, in interface{}) (interface{}, error) {
			return eventSvc.SubmitEvent(ctx, in.(*service.SubmitEventRequest))
		})
		out, err := h(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/v1/events", func(ctx http.Context) error {
		var q struct {
			Status   string `json:"status"`
			Page     int32  `json:"page"`
			PageSize int32  `json:"page_size"`
		}
		if err := ctx.BindQuery(&q); err != nil {
			return biz.ErrValidation("malformed query parameters")
		}
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return eventSvc.ListEvents(ctx, q.Status, q.Page, q.PageSize)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/v1/relay", func(ctx http.Context) error {
		var req service.RelayRequest
		if err := ctx.Bind(&req); err != nil {
			return biz.ErrValidation("malformed request body")
		}
		h := ctx.Middleware(func(ctx context.Context, in interface{}) (interface{}, error) {
			return relaySvc.Relay(ctx, in.(*service.RelayRequest))
		})
		out, err := h(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/v1/breakers/{name}", func(ctx http.Context) error {
		name := ctx.Vars().Get("name")
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return breakerSvc.Stats(ctx, name)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})
}
