package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

type JobExecutionStatus string

const (
	JobStatusPending JobExecutionStatus = "pending"
	JobStatusRunning JobExecutionStatus = "running"
	JobStatusSuccess JobExecutionStatus = "success"
	JobStatusFailed  JobExecutionStatus = "failed"
	JobStatusStalled JobExecutionStatus = "stalled"
)

// JobStatus is the live record of one scheduled job (a watcher, the stuck
// record sweep or the pending retry pass).
type JobStatus struct {
	JobName             string                 `json:"job_name"`
	Status              JobExecutionStatus     `json:"status"`
	LastRunTime         time.Time              `json:"last_run_time"`
	LastDuration        time.Duration          `json:"last_duration_ms"`
	SuccessCount        int64                  `json:"success_count"`
	FailureCount        int64                  `json:"failure_count"`
	ConsecutiveFailures int64                  `json:"consecutive_failures"`
	LastError           string                 `json:"last_error,omitempty"`
	AverageExecution    time.Duration          `json:"average_execution_ms"`
	MaxExecutionTime    time.Duration          `json:"max_execution_ms"`
	MinExecutionTime    time.Duration          `json:"min_execution_ms"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

type JobsSummary struct {
	TotalJobs      int       `json:"total_jobs"`
	RunningJobs    int       `json:"running_jobs"`
	HealthyJobs    int       `json:"healthy_jobs"`
	UnhealthyJobs  int       `json:"unhealthy_jobs"`
	StalledJobs    int       `json:"stalled_jobs"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// JobStatusManager tracks job runs. It is safe for concurrent use; Stop ends
// its background stall detection and cleanup loops.
type JobStatusManager struct {
	mu               sync.RWMutex
	statuses         map[string]*JobStatus
	logger           *logger.Logger
	metrics          *BackgroundJobMetrics
	stalledThreshold time.Duration
	cleanupInterval  time.Duration
	retentionPeriod  time.Duration
	stop             chan struct{}
	stopOnce         sync.Once
}

func NewJobStatusManager(logger *logger.Logger, metrics *BackgroundJobMetrics) *JobStatusManager {
	jsm := &JobStatusManager{
		statuses:         make(map[string]*JobStatus),
		logger:           logger,
		metrics:          metrics,
		stalledThreshold: 5 * time.Minute,
		cleanupInterval:  1 * time.Hour,
		retentionPeriod:  24 * time.Hour,
		stop:             make(chan struct{}),
	}

	go jsm.every(time.Minute, jsm.detectStalledJobs)
	go jsm.every(jsm.cleanupInterval, jsm.cleanupOldStatuses)

	return jsm
}

// WithStalledThreshold sets how long a run may last before it counts as stalled.
func (jsm *JobStatusManager) WithStalledThreshold(d time.Duration) *JobStatusManager {
	jsm.mu.Lock()
	jsm.stalledThreshold = d
	jsm.mu.Unlock()
	return jsm
}

func (jsm *JobStatusManager) Stop() {
	jsm.stopOnce.Do(func() { close(jsm.stop) })
}

func (jsm *JobStatusManager) every(d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-jsm.stop:
			return
		case <-ticker.C:
			fn()
		}
	}
}

func newJobStatus(jobName string, status JobExecutionStatus) *JobStatus {
	now := time.Now()
	return &JobStatus{
		JobName:          jobName,
		Status:           status,
		Metadata:         make(map[string]interface{}),
		CreatedAt:        now,
		UpdatedAt:        now,
		MinExecutionTime: time.Duration(math.MaxInt64),
	}
}

func (jsm *JobStatusManager) RegisterJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	if _, exists := jsm.statuses[jobName]; exists {
		return
	}
	jsm.statuses[jobName] = newJobStatus(jobName, JobStatusPending)
	jsm.logger.Info("Job registered for monitoring", map[string]string{
		"job_name": jobName,
	})
}

func (jsm *JobStatusManager) StartJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		status = newJobStatus(jobName, JobStatusRunning)
		jsm.statuses[jobName] = status
	}
	status.Status = JobStatusRunning
	status.LastRunTime = time.Now()
	status.UpdatedAt = status.LastRunTime

	jsm.metrics.activeJobs.Inc()

	jsm.logger.Debug("Job started", map[string]string{
		"job_name":   jobName,
		"start_time": status.LastRunTime.Format(time.RFC3339),
	})
}

// CompleteJob folds one run into the job's statistics.
func (jsm *JobStatusManager) CompleteJob(jobName string, err error, metadata map[string]interface{}) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		jsm.logger.Error("Attempted to complete unregistered job", map[string]string{
			"job_name": jobName,
		})
		return
	}

	duration := time.Since(status.LastRunTime)
	status.LastDuration = duration
	status.UpdatedAt = time.Now()

	if duration < status.MinExecutionTime {
		status.MinExecutionTime = duration
	}
	if duration > status.MaxExecutionTime {
		status.MaxExecutionTime = duration
	}

	totalRuns := status.SuccessCount + status.FailureCount
	status.AverageExecution = (status.AverageExecution*time.Duration(totalRuns) + duration) / time.Duration(totalRuns+1)

	for key, value := range metadata {
		status.Metadata[key] = value
	}

	if err != nil {
		status.Status = JobStatusFailed
		status.FailureCount++
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		status.Metadata["error_type"] = classifyJobError(err)

		jsm.metrics.jobRuns.WithLabelValues(jobName, "error").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "failed").Observe(duration.Seconds())

		jsm.logger.Error("Job failed", map[string]string{
			"job_name":             jobName,
			"duration":             duration.String(),
			"error":                err.Error(),
			"consecutive_failures": fmt.Sprintf("%d", status.ConsecutiveFailures),
		})
	} else {
		status.Status = JobStatusSuccess
		status.SuccessCount++
		status.ConsecutiveFailures = 0
		status.LastError = ""
		delete(status.Metadata, "error_type")

		jsm.metrics.jobRuns.WithLabelValues(jobName, "success").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "success").Observe(duration.Seconds())

		jsm.logger.Debug("Job completed successfully", map[string]string{
			"job_name": jobName,
			"duration": duration.String(),
		})
	}

	jsm.metrics.activeJobs.Dec()
}

func copyStatus(status *JobStatus) JobStatus {
	statusCopy := *status
	statusCopy.Metadata = make(map[string]interface{}, len(status.Metadata))
	for k, v := range status.Metadata {
		statusCopy.Metadata[k] = v
	}
	return statusCopy
}

func (jsm *JobStatusManager) GetJobStatus(jobName string) (*JobStatus, bool) {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		return nil, false
	}
	statusCopy := copyStatus(status)
	return &statusCopy, true
}

// GetAllJobStatuses reports running jobs past the stall threshold as stalled
// even before the detector loop has marked them.
func (jsm *JobStatusManager) GetAllJobStatuses() map[string]JobStatus {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	result := make(map[string]JobStatus, len(jsm.statuses))
	now := time.Now()

	for name, status := range jsm.statuses {
		statusCopy := copyStatus(status)
		if status.Status == JobStatusRunning && now.Sub(status.LastRunTime) > jsm.stalledThreshold {
			statusCopy.Status = JobStatusStalled
		}
		result[name] = statusCopy
	}

	return result
}

func (jsm *JobStatusManager) GetJobsSummary() JobsSummary {
	statuses := jsm.GetAllJobStatuses()

	summary := JobsSummary{
		TotalJobs:      len(statuses),
		LastUpdateTime: time.Now(),
	}

	for _, status := range statuses {
		switch status.Status {
		case JobStatusRunning:
			summary.RunningJobs++
		case JobStatusSuccess:
			summary.HealthyJobs++
		case JobStatusFailed:
			summary.UnhealthyJobs++
		case JobStatusStalled:
			summary.StalledJobs++
		}
	}

	return summary
}

func (jsm *JobStatusManager) detectStalledJobs() {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	now := time.Now()
	stalledCount := 0

	for jobName, status := range jsm.statuses {
		if status.Status == JobStatusStalled {
			stalledCount++
			continue
		}
		if status.Status != JobStatusRunning || now.Sub(status.LastRunTime) <= jsm.stalledThreshold {
			continue
		}

		status.Status = JobStatusStalled
		status.UpdatedAt = now
		stalledCount++

		jsm.logger.Error("Job detected as stalled", map[string]string{
			"job_name":      jobName,
			"last_run_time": status.LastRunTime.Format(time.RFC3339),
			"duration":      now.Sub(status.LastRunTime).String(),
		})
	}

	jsm.metrics.stalledJobs.Set(float64(stalledCount))
}

func (jsm *JobStatusManager) cleanupOldStatuses() {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	cutoff := time.Now().Add(-jsm.retentionPeriod)
	cleaned := 0

	for jobName, status := range jsm.statuses {
		if status.UpdatedAt.Before(cutoff) && status.Status != JobStatusRunning {
			delete(jsm.statuses, jobName)
			cleaned++
		}
	}

	if cleaned > 0 {
		jsm.logger.Info("Cleaned up old job statuses", map[string]string{
			"cleaned_count": fmt.Sprintf("%d", cleaned),
		})
	}
}

// Heartbeat is called after a successful run, typically an uptime webhook.
type Heartbeat interface {
	CallUptimeWebhook(ctx context.Context, webhookURL string)
}

// InstrumentedJob runs a job function with a deadline, panic recovery and
// status tracking.
type InstrumentedJob struct {
	jobName       string
	jobFunc       func(ctx context.Context) error
	statusManager *JobStatusManager
	logger        *logger.Logger
	timeout       time.Duration
	heartbeat     Heartbeat
	heartbeatURL  string
}

func NewInstrumentedJob(
	jobName string,
	jobFunc func(ctx context.Context) error,
	statusManager *JobStatusManager,
	logger *logger.Logger,
	timeout time.Duration,
) *InstrumentedJob {
	statusManager.RegisterJob(jobName)

	return &InstrumentedJob{
		jobName:       jobName,
		jobFunc:       jobFunc,
		statusManager: statusManager,
		logger:        logger,
		timeout:       timeout,
	}
}

// NewInstrumentedJobWithWebhook pings heartbeatURL after every successful run.
func NewInstrumentedJobWithWebhook(
	jobName string,
	jobFunc func(ctx context.Context) error,
	statusManager *JobStatusManager,
	logger *logger.Logger,
	timeout time.Duration,
	heartbeat Heartbeat,
	heartbeatURL string,
) *InstrumentedJob {
	job := NewInstrumentedJob(jobName, jobFunc, statusManager, logger, timeout)
	job.heartbeat = heartbeat
	job.heartbeatURL = heartbeatURL
	return job
}

func (ij *InstrumentedJob) Name() string {
	return ij.jobName
}

// Execute runs the job once and returns its error. A run that outlives the
// timeout is reported as failed; its context is cancelled so it can wind down.
func (ij *InstrumentedJob) Execute(parent context.Context) error {
	ij.statusManager.StartJob(ij.jobName)

	ctx, cancel := context.WithTimeout(parent, ij.timeout)
	defer cancel()

	type outcome struct {
		err      error
		metadata map[string]interface{}
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ij.logger.Error("Job panicked", map[string]string{
					"job_name": ij.jobName,
					"panic":    fmt.Sprintf("%v", r),
				})
				done <- outcome{
					err: fmt.Errorf("job panicked: %v", r),
					metadata: map[string]interface{}{
						"panic":       fmt.Sprintf("%v", r),
						"stack_trace": string(debug.Stack()),
					},
				}
			}
		}()
		done <- outcome{err: ij.jobFunc(ctx)}
	}()

	var (
		err      error
		metadata map[string]interface{}
		timedOut bool
	)
	select {
	case out := <-done:
		err, metadata = out.err, out.metadata
		timedOut = err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
	case <-ctx.Done():
		err = ctx.Err()
		timedOut = parent.Err() == nil
	}
	if timedOut {
		err = fmt.Errorf("job timeout after %v", ij.timeout)
		metadata = map[string]interface{}{"timeout": ij.timeout.String()}
		ij.statusManager.metrics.jobTimeouts.WithLabelValues(ij.jobName).Inc()
	}

	ij.statusManager.CompleteJob(ij.jobName, err, metadata)

	if err == nil && ij.heartbeat != nil {
		ij.heartbeat.CallUptimeWebhook(context.WithoutCancel(parent), ij.heartbeatURL)
	}
	return err
}

// Run adapts Execute to cron, which takes a func().
func (ij *InstrumentedJob) Run() {
	_ = ij.Execute(context.Background())
}

type BackgroundJobMetrics struct {
	jobDuration    *prometheus.HistogramVec
	jobRuns        *prometheus.CounterVec
	activeJobs     prometheus.Gauge
	stalledJobs    prometheus.Gauge
	pendingRecords *prometheus.GaugeVec
	jobTimeouts    *prometheus.CounterVec
}

func NewBackgroundJobMetrics() *BackgroundJobMetrics {
	return &BackgroundJobMetrics{
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_background_job_duration_seconds",
				Help:    "Background job execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"job_name", "status"},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_background_job_runs_total",
				Help: "Total number of background job runs",
			},
			[]string{"job_name", "status"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_background_jobs_active",
				Help: "Number of currently running background jobs",
			},
		),
		stalledJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_background_jobs_stalled",
				Help: "Number of stalled background jobs",
			},
		),
		pendingRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_pending_records",
				Help: "Records found by the last sweep, by kind and sweep",
			},
			[]string{"kind", "sweep"},
		),
		jobTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_job_timeouts_total",
				Help: "Total job timeouts",
			},
			[]string{"job_name"},
		),
	}
}

func (m *BackgroundJobMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.jobDuration,
		m.jobRuns,
		m.activeJobs,
		m.stalledJobs,
		m.pendingRecords,
		m.jobTimeouts,
	)
}

// SetPendingRecords records how many records a sweep touched.
func (m *BackgroundJobMetrics) SetPendingRecords(kind, sweep string, n int) {
	m.pendingRecords.WithLabelValues(kind, sweep).Set(float64(n))
}

func classifyJobError(err error) string {
	if err == nil {
		return ""
	}
	if chain.IsTransient(err) {
		return "chain_unavailable"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "sql"):
		return "database"
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"):
		return "network"
	case strings.Contains(errStr, "kafka"), strings.Contains(errStr, "api"):
		return "external_api"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
