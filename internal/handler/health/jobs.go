package health

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
)

// consecutive failures after which a critical job marks the service unhealthy
const criticalFailureThreshold = 2

// Jobs reports the watcher and sweep jobs.
// @Summary Background jobs health check
// @Description Watchers, stuck-record recovery and pending retry status
// @Tags health
// @Produce json
// @Success 200 {object} JobsHealthResponse
// @Success 206 {object} JobsHealthResponse
// @Failure 503 {object} JobsHealthResponse
// @Router /api/v1/health/jobs [get]
func (h *HealthHandler) Jobs(c *gin.Context) {
	start := time.Now()

	if h.jobStatusManager == nil {
		c.JSON(http.StatusServiceUnavailable, JobsHealthResponse{
			Status:     statusUnhealthy,
			Timestamp:  time.Now(),
			Jobs:       map[string]monitoring.JobStatus{},
			DurationMs: time.Since(start).Milliseconds(),
		})
		return
	}

	jobs := h.jobStatusManager.GetAllJobStatuses()
	summary := h.jobStatusManager.GetJobsSummary()
	overall := jobsHealth(jobs, summary)

	resp := JobsHealthResponse{
		Status:     overall,
		Timestamp:  time.Now(),
		Jobs:       jobs,
		Summary:    summary,
		DurationMs: time.Since(start).Milliseconds(),
	}

	h.logger.Info("[HealthHandler.Jobs] checked", map[string]string{
		"status":         overall,
		"duration_ms":    strconv.FormatInt(resp.DurationMs, 10),
		"total_jobs":     strconv.Itoa(summary.TotalJobs),
		"unhealthy_jobs": strconv.Itoa(summary.UnhealthyJobs),
		"stalled_jobs":   strconv.Itoa(summary.StalledJobs),
	})

	c.JSON(jobsStatusCode(overall), resp)
}

// jobsHealth is unhealthy when any job stalled or a critical sweep keeps
// failing, degraded when only watchers or occasional failures are seen.
func jobsHealth(jobs map[string]monitoring.JobStatus, summary monitoring.JobsSummary) string {
	if summary.StalledJobs > 0 {
		return statusUnhealthy
	}
	if summary.UnhealthyJobs == 0 {
		return statusHealthy
	}
	for _, name := range monitoring.CriticalJobs {
		job, ok := jobs[name]
		if ok && job.Status == monitoring.JobStatusFailed && job.ConsecutiveFailures > criticalFailureThreshold {
			return statusUnhealthy
		}
	}
	return statusDegraded
}

func jobsStatusCode(status string) int {
	switch status {
	case statusUnhealthy:
		return http.StatusServiceUnavailable
	case statusDegraded:
		return http.StatusPartialContent
	}
	return http.StatusOK
}
