// Package service exposes the coordination layer over HTTP. Request and
// reply types are plain JSON structs bound by the transport layer.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewEventService,
	NewRelayService,
	NewBreakerService,
)
