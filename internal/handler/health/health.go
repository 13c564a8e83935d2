package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// Probe is a cheap liveness call against one external dependency.
type Probe interface {
	Name() string
	Ping(ctx context.Context) error
}

type probeFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (p probeFunc) Name() string                   { return p.name }
func (p probeFunc) Ping(ctx context.Context) error { return p.fn(ctx) }

// NewProbe wraps fn as a Probe.
func NewProbe(name string, fn func(ctx context.Context) error) Probe {
	return probeFunc{name: name, fn: fn}
}

// Breaker exposes a circuit breaker's state; the monitoring wrappers satisfy it.
type Breaker interface {
	Name() string
	State() gobreaker.State
}

type HealthHandler struct {
	logger           *logger.Logger
	db               *gorm.DB
	probes           []Probe
	breakers         []Breaker
	jobStatusManager *monitoring.JobStatusManager
	checkTimeout     time.Duration
}

func New(logger *logger.Logger, db *gorm.DB, probes []Probe, breakers []Breaker, jobStatusManager *monitoring.JobStatusManager) IHealthHandler {
	return &HealthHandler{
		logger:           logger,
		db:               db,
		probes:           probes,
		breakers:         breakers,
		jobStatusManager: jobStatusManager,
		checkTimeout:     3 * time.Second,
	}
}

// Basic handles the basic health check endpoint (/healthz)
// @Summary Basic health check
// @Description Returns basic system availability status
// @Tags health
// @Produce json
// @Success 200 {object} BasicHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Basic(c *gin.Context) {
	c.JSON(http.StatusOK, BasicHealthResponse{Message: "ok"})
}

// Database handles the database health check endpoint
// @Summary Database health check
// @Description Validates database connectivity
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/db [get]
func (h *HealthHandler) Database(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	dbCheck := h.checkDatabase(requestContext(c))
	response.Checks["database"] = dbCheck
	response.DurationMs = time.Since(start).Milliseconds()

	if dbCheck.Status == statusHealthy {
		response.Status = statusHealthy
		c.JSON(http.StatusOK, response)
		return
	}
	response.Status = statusUnhealthy
	c.JSON(http.StatusServiceUnavailable, response)
}

// External handles the external dependencies health check endpoint
// @Summary External dependencies health check
// @Description Pings chain nodes and reports circuit breaker states
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/external [get]
func (h *HealthHandler) External(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	ctx, cancel := context.WithTimeout(requestContext(c), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			check := h.checkProbe(ctx, p)
			mu.Lock()
			response.Checks[p.Name()] = check
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	for _, b := range h.breakers {
		state := b.State()
		check := HealthCheck{
			Status:   statusHealthy,
			Metadata: map[string]interface{}{"state": state.String()},
		}
		if state == gobreaker.StateOpen {
			check.Status = statusUnhealthy
			check.Error = "circuit open"
		}
		response.Checks["breaker:"+b.Name()] = check
	}
	response.DurationMs = time.Since(start).Milliseconds()

	response.Status = statusHealthy
	for _, check := range response.Checks {
		if check.Status != statusHealthy {
			response.Status = statusUnhealthy
			break
		}
	}

	if response.Status == statusHealthy {
		c.JSON(http.StatusOK, response)
		return
	}
	c.JSON(http.StatusServiceUnavailable, response)
}

func requestContext(c *gin.Context) context.Context {
	if c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}

func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Metadata: make(map[string]interface{}),
	}

	if h.db == nil {
		check.Status = statusUnhealthy
		check.Error = "database connection not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		check.Status = statusUnhealthy
		check.Error = fmt.Sprintf("failed to get underlying database: %v", err)
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		check.Status = statusUnhealthy
		if pingCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = err.Error()
		}
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	stats := sqlDB.Stats()

	check.Status = statusHealthy
	check.Latency = time.Since(start).Milliseconds()
	check.Metadata["driver"] = h.db.Dialector.Name()
	check.Metadata["connection_pool"] = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"max_open":         stats.MaxOpenConnections,
	}

	return check
}

func (h *HealthHandler) checkProbe(ctx context.Context, p Probe) HealthCheck {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.Ping(checkCtx)
	}()

	check := HealthCheck{}
	select {
	case err := <-done:
		if err != nil {
			check.Status = statusUnhealthy
			check.Error = err.Error()
		} else {
			check.Status = statusHealthy
		}
	case <-checkCtx.Done():
		check.Status = statusUnhealthy
		if checkCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = checkCtx.Err().Error()
		}
	}

	check.Latency = time.Since(start).Milliseconds()
	return check
}
