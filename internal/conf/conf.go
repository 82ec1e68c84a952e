// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration structure.
type Bootstrap struct {
	Server *Server
	Data   *Data
	Guard  *Guard
	Log    *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP holds HTTP server configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database holds the durable store configuration.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis holds the atomic store configuration.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Guard holds configuration for the coordination components.
type Guard struct {
	RateLimit  *Guard_RateLimit
	Circuit    *Guard_Circuit
	Credential *Guard_Credential
	Upstream   *Guard_Upstream
}

// Guard_RateLimit configures the sliding-window rate limiter.
// FailOpen selects the store-error policy: allow requests when Redis is
// unreachable (true) or surface the error (false).
type Guard_RateLimit struct {
	MaxRequests int32
	Window      *durationpb.Duration
	FailOpen    bool
}

// Guard_Circuit configures the per-dependency circuit breaker.
type Guard_Circuit struct {
	FailureThreshold int32
	MonitoringWindow *durationpb.Duration
	ResetTimeout     *durationpb.Duration
}

// Guard_Credential configures the shared credential cache and refresh lease.
type Guard_Credential struct {
	AuthorityUrl string
	ClientId     string
	ClientSecret string
	ProxyUrl     string
	Timeout      *durationpb.Duration
	ExpiryMargin *durationpb.Duration
	LeaseTtl     *durationpb.Duration
	LeaseWaitMax *durationpb.Duration
}

// Guard_Upstream configures the protected dependency client.
type Guard_Upstream struct {
	BaseUrl    string
	Timeout    *durationpb.Duration
	MaxRetries int32
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
