// Package data provides data access layer implementations.
// It handles store connections and coordination state persistence.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewEventRepo,
	NewRateLimitRepo,
	NewCircuitBreakerRepo,
	NewCredentialRepo,
	NewLogNotifier,
)
