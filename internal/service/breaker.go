package service

import (
	"context"

	"RelayGuard/internal/biz"
	"RelayGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerService exposes circuit breaker observability.
type BreakerService struct {
	breaker *biz.CircuitBreakerUsecase
	logger  *log.Helper
}

// NewBreakerService creates the breaker stats service.
func NewBreakerService(breaker *biz.CircuitBreakerUsecase, logger log.Logger) *BreakerService {
	return &BreakerService{
		breaker: breaker,
		logger:  log.NewHelper(logger),
	}
}

// Stats returns the breaker's current view of one dependency.
func (s *BreakerService) Stats(ctx context.Context, dependency string) (*model.CircuitStats, error) {
	if dependency == "" {
		return nil, biz.ErrValidation("dependency name is required")
	}
	return s.breaker.Stats(ctx, dependency)
}
