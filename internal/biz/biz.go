// Package biz contains business logic layer implementations.
// This layer holds the coordination state machines and their invariants.
package biz

import (
	"RelayGuard/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewIdempotencyUsecase,
	NewRateLimiterUseCase,
	NewCircuitBreakerUsecase,
	NewCredentialUsecase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(EventRepo), new(*data.EventRepo)),
	wire.Bind(new(RateLimitRepo), new(*data.RateLimitRepo)),
	wire.Bind(new(CircuitRepo), new(*data.CircuitBreakerRepo)),
	wire.Bind(new(CredentialRepo), new(*data.CredentialRepo)),
	wire.Bind(new(Notifier), new(*data.LogNotifier)),
)
