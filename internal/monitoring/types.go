package monitoring

import (
	"time"
)

// CircuitBreakerConfig defines the configuration for circuit breakers
type CircuitBreakerConfig struct {
	MaxRequests                 uint32        `json:"max_requests"`
	Interval                    time.Duration `json:"interval"`
	Timeout                     time.Duration `json:"timeout"`
	ConsecutiveFailureThreshold int           `json:"consecutive_failure_threshold"`
}

// TimeoutConfig defines timeout configurations for different operations
type TimeoutConfig struct {
	RequestTimeout     time.Duration `json:"request_timeout"`
	BroadcastTimeout   time.Duration `json:"broadcast_timeout"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`
}

// APIErrorType represents different types of API errors for classification
type APIErrorType string

const (
	ErrorTypeTimeout      APIErrorType = "timeout"
	ErrorTypeNetworkError APIErrorType = "network_error"
	ErrorTypeServerError  APIErrorType = "server_error"
	ErrorTypeClientError  APIErrorType = "client_error"
	// ErrorTypeRejected is a definite answer from the chain, such as a mismatch.
	ErrorTypeRejected APIErrorType = "rejected"
	ErrorTypeUnknown  APIErrorType = "unknown"
)

var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests:                 3,
	Interval:                    30 * time.Second,
	Timeout:                     60 * time.Second,
	ConsecutiveFailureThreshold: 5,
}

// CircuitBreakerConfigs holds per-service settings, keyed by backend.
var CircuitBreakerConfigs = map[string]CircuitBreakerConfig{
	"blockstream_api": {
		MaxRequests:                 5,
		Interval:                    30 * time.Second,
		Timeout:                     60 * time.Second,
		ConsecutiveFailureThreshold: 3,
	},
	"zcashd_rpc": {
		MaxRequests:                 3,
		Interval:                    45 * time.Second,
		Timeout:                     90 * time.Second,
		ConsecutiveFailureThreshold: 5,
	},
	"solana_rpc": {
		MaxRequests:                 5,
		Interval:                    30 * time.Second,
		Timeout:                     60 * time.Second,
		ConsecutiveFailureThreshold: 5,
	},
	"mint_service": {
		MaxRequests:                 2,
		Interval:                    60 * time.Second,
		Timeout:                     120 * time.Second,
		ConsecutiveFailureThreshold: 3,
	},
}

// ConfigFor returns the settings for a backend, or the defaults.
func ConfigFor(backend string) CircuitBreakerConfig {
	if c, ok := CircuitBreakerConfigs[backend]; ok {
		return c
	}
	return DefaultCircuitBreakerConfig
}

var DefaultTimeoutConfig = TimeoutConfig{
	RequestTimeout:     15 * time.Second,
	BroadcastTimeout:   60 * time.Second,
	HealthCheckTimeout: 3 * time.Second,
}
