package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// breaker runs calls to one external service through a gobreaker circuit.
// Only transient failures count against the circuit: a mismatch or a missing
// transaction is a correct answer from a healthy node.
type breaker struct {
	name           string
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
	timeoutConfig  TimeoutConfig
}

func newBreaker(name string, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *breaker {
	if err := validateCircuitBreakerConfig(config); err != nil {
		logger.Warn("invalid circuit breaker config, using defaults", map[string]string{
			"service": name,
			"error":   err.Error(),
		})
		config = DefaultCircuitBreakerConfig
	}

	b := &breaker{
		name:          name,
		metrics:       metrics,
		logger:        logger,
		timeoutConfig: timeoutConfig,
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !chain.IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state change", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(name, to)
		},
	}

	b.circuitBreaker = gobreaker.NewCircuitBreaker(settings)
	metrics.UpdateCircuitBreakerState(name, gobreaker.StateClosed)
	return b
}

// Name is the service label used in metrics and logs.
func (b *breaker) Name() string {
	return b.name
}

func (b *breaker) State() gobreaker.State {
	return b.circuitBreaker.State()
}

// call runs fn through the circuit. An open circuit is reported as the chain
// being unavailable so callers retry later instead of failing the record.
func (b *breaker) call(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.circuitBreaker.Execute(func() (interface{}, error) {
		return b.executeWithTimeout(ctx, operation, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, chain.Unavailable(fmt.Errorf("%s: %w", b.name, err))
	}
	return result, err
}

func (b *breaker) executeWithTimeout(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	var timeout time.Duration
	switch operation {
	case "health_check":
		timeout = b.timeoutConfig.HealthCheckTimeout
	case "broadcast":
		timeout = b.timeoutConfig.BroadcastTimeout
	default:
		timeout = b.timeoutConfig.RequestTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(ctx)
	duration := time.Since(start).Seconds()

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		b.metrics.RecordTimeout(b.name, operation)
		b.logError(operation, duration, err)
		return nil, chain.Unavailable(fmt.Errorf("timeout after %v: %w", timeout, err))
	}

	status := "success"
	if err != nil {
		status = "error"
		b.logError(operation, duration, err)
	}
	b.metrics.RecordAPICall(b.name, operation, status, duration)
	return result, err
}

func (b *breaker) logError(operation string, duration float64, err error) {
	fields := map[string]string{
		"service":    b.name,
		"operation":  operation,
		"duration":   strconv.FormatFloat(duration, 'f', 3, 64),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
		"cb_state":   b.circuitBreaker.State().String(),
	}
	if chain.IsTransient(err) {
		b.logger.Error("External API call failed", fields)
		return
	}
	b.logger.Debug("External API call returned an answer error", fields)
}

// CircuitBreakerVerifier wraps a chain.Verifier.
type CircuitBreakerVerifier struct {
	*breaker
	wrapped chain.Verifier
}

func NewCircuitBreakerVerifier(wrapped chain.Verifier, name string, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerVerifier {
	return NewCircuitBreakerVerifierWithTimeout(wrapped, name, config, DefaultTimeoutConfig, metrics, logger)
}

func NewCircuitBreakerVerifierWithTimeout(wrapped chain.Verifier, name string, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerVerifier {
	return &CircuitBreakerVerifier{
		breaker: newBreaker(name, config, timeoutConfig, metrics, logger),
		wrapped: wrapped,
	}
}

func (cb *CircuitBreakerVerifier) Chain() model.Chain {
	return cb.wrapped.Chain()
}

func (cb *CircuitBreakerVerifier) Verify(ctx context.Context, exp chain.Expectation) (chain.VerificationResult, error) {
	result, err := cb.call(ctx, "verify", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.Verify(ctx, exp)
	})
	if err != nil {
		return chain.VerificationResult{}, err
	}
	return result.(chain.VerificationResult), nil
}

// CircuitBreakerBroadcaster wraps a chain.Broadcaster. Broadcast gets the
// longer broadcast timeout.
type CircuitBreakerBroadcaster struct {
	*breaker
	wrapped chain.Broadcaster
}

func NewCircuitBreakerBroadcaster(wrapped chain.Broadcaster, name string, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerBroadcaster {
	return NewCircuitBreakerBroadcasterWithTimeout(wrapped, name, config, DefaultTimeoutConfig, metrics, logger)
}

func NewCircuitBreakerBroadcasterWithTimeout(wrapped chain.Broadcaster, name string, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerBroadcaster {
	return &CircuitBreakerBroadcaster{
		breaker: newBreaker(name, config, timeoutConfig, metrics, logger),
		wrapped: wrapped,
	}
}

func (cb *CircuitBreakerBroadcaster) Chain() model.Chain {
	return cb.wrapped.Chain()
}

type findResult struct {
	txID  string
	found bool
}

func (cb *CircuitBreakerBroadcaster) FindExisting(ctx context.Context, key string) (string, bool, error) {
	result, err := cb.call(ctx, "find_existing", func(ctx context.Context) (interface{}, error) {
		txID, found, err := cb.wrapped.FindExisting(ctx, key)
		if err != nil {
			return nil, err
		}
		return findResult{txID: txID, found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := result.(findResult)
	return r.txID, r.found, nil
}

func (cb *CircuitBreakerBroadcaster) Broadcast(ctx context.Context, t chain.Transfer) (string, error) {
	result, err := cb.call(ctx, "broadcast", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.Broadcast(ctx, t)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// classifyError classifies errors into different types for metrics and logging
func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}
	if chain.IsPermanent(err) || errors.Is(err, chain.ErrTransactionNotFound) {
		return ErrorTypeRejected
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") ||
		strings.Contains(errMsg, "context canceled") {
		return ErrorTypeTimeout
	}

	if strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "unreachable") ||
		strings.Contains(errMsg, "dns") {
		return ErrorTypeNetworkError
	}

	if strings.Contains(errMsg, "500") ||
		strings.Contains(errMsg, "502") ||
		strings.Contains(errMsg, "503") ||
		strings.Contains(errMsg, "504") ||
		strings.Contains(errMsg, "internal server error") ||
		strings.Contains(errMsg, "bad gateway") ||
		strings.Contains(errMsg, "service unavailable") ||
		strings.Contains(errMsg, "gateway timeout") {
		return ErrorTypeServerError
	}

	if strings.Contains(errMsg, "400") ||
		strings.Contains(errMsg, "401") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "404") ||
		strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "bad request") ||
		strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "forbidden") ||
		strings.Contains(errMsg, "rate limit") {
		return ErrorTypeClientError
	}

	return ErrorTypeUnknown
}

func validateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return fmt.Errorf("max_requests must be greater than 0")
	}
	if config.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("consecutive_failure_threshold must be greater than 0")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if config.Interval < 0 {
		return fmt.Errorf("interval must be non-negative")
	}
	return nil
}
