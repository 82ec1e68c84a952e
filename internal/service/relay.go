package service

import (
	"context"
	"encoding/json"
	"errors"

	"RelayGuard/internal/biz"
	"RelayGuard/pkg/upstream"

	"github.com/go-kratos/kratos/v2/log"
)

// upstreamDependency names the protected dependency for the breaker.
const upstreamDependency = "upstream"

// RelayRequest is a request to forward to the protected upstream.
type RelayRequest struct {
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload"`
}

// RelayReply carries the upstream's response back to the caller.
type RelayReply struct {
	Status   int             `json:"status"`
	Body     json.RawMessage `json:"body,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
}

// RelayService forwards requests to the upstream behind the full guard
// chain: the distributed rate limit has already been applied by middleware,
// here the circuit breaker wraps credential acquisition plus the call.
type RelayService struct {
	breaker    *biz.CircuitBreakerUsecase
	credential *biz.CredentialUsecase
	client     *upstream.Client
	logger     *log.Helper
}

// NewRelayService creates the relay service.
func NewRelayService(breaker *biz.CircuitBreakerUsecase, credential *biz.CredentialUsecase, client *upstream.Client, logger log.Logger) *RelayService {
	return &RelayService{
		breaker:    breaker,
		credential: credential,
		client:     client,
		logger:     log.NewHelper(logger),
	}
}

// Relay forwards the payload to the upstream under the circuit breaker,
// authenticating with the shared cached credential. The credential is
// acquired before entering the breaker so credential trouble never counts
// against the upstream's failure budget.
func (s *RelayService) Relay(ctx context.Context, req *RelayRequest) (*RelayReply, error) {
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, biz.ErrValidation("payload must be valid JSON")
	}
	path := req.Path
	if path == "" {
		path = "/"
	}

	entry, err := s.credential.GetCredential(ctx)
	if err != nil {
		return nil, err
	}

	var reply *RelayReply
	err = s.breaker.Execute(ctx, upstreamDependency, func(ctx context.Context) error {
		resp, err := s.client.Relay(ctx, path, entry.Token, req.Payload)
		if err != nil {
			return s.classify(err)
		}
		reply = &RelayReply{
			Status:   resp.StatusCode,
			Body:     resp.Body,
			Degraded: entry.Placeholder,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// An auth rejection with a cached token means the token aged out
	// server-side; drop it so the next call refreshes.
	if reply.Status == 401 && !entry.Placeholder {
		if invErr := s.credential.Invalidate(ctx); invErr != nil {
			s.logger.Warnw("failed to invalidate rejected credential", "error", invErr)
		}
	}
	return reply, nil
}

// classify maps transport sentinels onto the public error taxonomy. Errors
// that are already taxonomy errors (credential lease timeouts, store
// failures) pass through unchanged.
func (s *RelayService) classify(err error) error {
	switch {
	case errors.Is(err, upstream.ErrTimeout):
		return biz.ErrUpstreamTimeout(upstreamDependency)
	case errors.Is(err, upstream.ErrUnavailable):
		return biz.ErrUpstreamUnavailable(upstreamDependency, err)
	default:
		return err
	}
}
