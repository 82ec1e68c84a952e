// Package model holds domain value types shared between layers.
package model

import "time"

// CircuitBreakerState is the derived state of a circuit breaker.
type CircuitBreakerState string

// Circuit breaker states.
const (
	CircuitClosed   CircuitBreakerState = "CLOSED"
	CircuitOpen     CircuitBreakerState = "OPEN"
	CircuitHalfOpen CircuitBreakerState = "HALF_OPEN"
)

// CircuitOpenedEvent represents a circuit breaker tripping open.
type CircuitOpenedEvent struct {
	Dependency   string
	FailureCount int64
	OpenedAt     time.Time
	RetryAt      time.Time
}

// CircuitRecoveredEvent represents a circuit breaker closing after a
// successful half-open trial.
type CircuitRecoveredEvent struct {
	Dependency  string
	RecoveredAt time.Time
}

// CircuitStats is a read-only snapshot of breaker state for observability.
type CircuitStats struct {
	Dependency       string              `json:"dependency"`
	State            CircuitBreakerState `json:"state"`
	FailureCount     int64               `json:"failure_count"`
	FailureThreshold int32               `json:"failure_threshold"`
	LastFailureAt    *time.Time          `json:"last_failure_at,omitempty"`
	RetryAt          *time.Time          `json:"retry_at,omitempty"`
	MonitoringWindow time.Duration       `json:"monitoring_window"`
	ResetTimeout     time.Duration       `json:"reset_timeout"`
}
