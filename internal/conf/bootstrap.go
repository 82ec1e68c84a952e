package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with RELAYGUARD_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or RELAYGUARD_DATA_DATABASE_SOURCE: MySQL connection string
//
// Optional but commonly set:
//   - REDIS_ADDR or RELAYGUARD_DATA_REDIS_ADDR: Redis address
//   - AUTHORITY_CLIENT_SECRET or RELAYGUARD_GUARD_CREDENTIAL_CLIENT_SECRET
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with RELAYGUARD_ prefix
	v.SetEnvPrefix("RELAYGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without RELAYGUARD_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "RELAYGUARD_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "RELAYGUARD_DATA_REDIS_ADDR")
	_ = v.BindEnv("guard.credential.client_secret", "AUTHORITY_CLIENT_SECRET", "RELAYGUARD_GUARD_CREDENTIAL_CLIENT_SECRET")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Guard: &Guard{
			RateLimit: &Guard_RateLimit{
				MaxRequests: v.GetInt32("guard.ratelimit.max_requests"),
				Window:      durationpb.New(v.GetDuration("guard.ratelimit.window")),
				FailOpen:    v.GetBool("guard.ratelimit.fail_open"),
			},
			Circuit: &Guard_Circuit{
				FailureThreshold: v.GetInt32("guard.circuit.failure_threshold"),
				MonitoringWindow: durationpb.New(v.GetDuration("guard.circuit.monitoring_window")),
				ResetTimeout:     durationpb.New(v.GetDuration("guard.circuit.reset_timeout")),
			},
			Credential: &Guard_Credential{
				AuthorityUrl: v.GetString("guard.credential.authority_url"),
				ClientId:     v.GetString("guard.credential.client_id"),
				ClientSecret: v.GetString("guard.credential.client_secret"),
				ProxyUrl:     v.GetString("guard.credential.proxy_url"),
				Timeout:      durationpb.New(v.GetDuration("guard.credential.timeout")),
				ExpiryMargin: durationpb.New(v.GetDuration("guard.credential.expiry_margin")),
				LeaseTtl:     durationpb.New(v.GetDuration("guard.credential.lease_ttl")),
				LeaseWaitMax: durationpb.New(v.GetDuration("guard.credential.lease_wait_max")),
			},
			Upstream: &Guard_Upstream{
				BaseUrl:    v.GetString("guard.upstream.base_url"),
				Timeout:    durationpb.New(v.GetDuration("guard.upstream.timeout")),
				MaxRetries: v.GetInt32("guard.upstream.max_retries"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Rate limiter defaults: 100 requests per 15-minute sliding window,
	// fail open on store errors (availability over strict quota).
	v.SetDefault("guard.ratelimit.max_requests", 100)
	v.SetDefault("guard.ratelimit.window", 15*time.Minute)
	v.SetDefault("guard.ratelimit.fail_open", true)

	// Circuit breaker defaults
	v.SetDefault("guard.circuit.failure_threshold", 5)
	v.SetDefault("guard.circuit.monitoring_window", time.Minute)
	v.SetDefault("guard.circuit.reset_timeout", 30*time.Second)

	// Credential cache defaults
	// Note: an empty guard.credential.authority_url selects placeholder-token mode
	v.SetDefault("guard.credential.timeout", 5*time.Second)
	v.SetDefault("guard.credential.expiry_margin", time.Minute)
	v.SetDefault("guard.credential.lease_ttl", 10*time.Second)
	v.SetDefault("guard.credential.lease_wait_max", 5*time.Second)

	// Upstream defaults
	v.SetDefault("guard.upstream.timeout", 10*time.Second)
	v.SetDefault("guard.upstream.max_retries", 3)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or invalid fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Guard == nil || bc.Guard.RateLimit == nil || bc.Guard.RateLimit.MaxRequests <= 0 {
		missingFields = append(missingFields, "guard.ratelimit.max_requests (must be > 0)")
	}

	if bc.Guard == nil || bc.Guard.Circuit == nil || bc.Guard.Circuit.FailureThreshold <= 0 {
		missingFields = append(missingFields, "guard.circuit.failure_threshold (must be > 0)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
