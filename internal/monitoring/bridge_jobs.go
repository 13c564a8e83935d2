package monitoring

import (
	"context"
	"time"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/watcher"
)

const (
	JobRecoverStuck = "recover_stuck"
	JobRetryPending = "retry_pending"
	watchJobPrefix  = "watch_"
)

// CriticalJobs are the jobs whose repeated failure leaves records unsettled.
// A failing watcher only delays discovery; deposits can still be submitted.
var CriticalJobs = []string{JobRecoverStuck, JobRetryPending}

// WatchJobName is the job status name used for a chain watcher.
func WatchJobName(watcherName string) string {
	return watchJobPrefix + watcherName
}

// Sweeper is the relayer's maintenance surface.
type Sweeper interface {
	RecoverStuck(ctx context.Context) (relayer.RecoveryReport, error)
	RetryPending(ctx context.Context) (int, error)
}

type ReserveSource interface {
	Reserves(ctx context.Context) ([]model.ReserveLedger, error)
}

type WatchRunner interface {
	Watch(ctx context.Context, w watcher.Watcher) error
}

// BridgeJobs builds the instrumented scheduled jobs: one per watcher, the
// stuck record sweep and the pending retry pass.
type BridgeJobs struct {
	statusManager  *JobStatusManager
	jobMetrics     *BackgroundJobMetrics
	relayerMetrics *RelayerMetrics
	heartbeat      Heartbeat
	webhooks       config.UptimeWebhookConfig
	logger         *logger.Logger
}

func NewBridgeJobs(
	statusManager *JobStatusManager,
	jobMetrics *BackgroundJobMetrics,
	relayerMetrics *RelayerMetrics,
	heartbeat Heartbeat,
	webhooks config.UptimeWebhookConfig,
	logger *logger.Logger,
) *BridgeJobs {
	return &BridgeJobs{
		statusManager:  statusManager,
		jobMetrics:     jobMetrics,
		relayerMetrics: relayerMetrics,
		heartbeat:      heartbeat,
		webhooks:       webhooks,
		logger:         logger,
	}
}

func (b *BridgeJobs) watchURL(name string) string {
	switch name {
	case "btc":
		return b.webhooks.WatchBtcURL
	case "zec":
		return b.webhooks.WatchZecURL
	case "sol":
		return b.webhooks.WatchSolURL
	}
	return ""
}

func (b *BridgeJobs) Watch(runner WatchRunner, w watcher.Watcher) *InstrumentedJob {
	return NewInstrumentedJobWithWebhook(
		WatchJobName(w.Name()),
		func(ctx context.Context) error {
			return runner.Watch(ctx, w)
		},
		b.statusManager,
		b.logger,
		5*time.Minute,
		b.heartbeat,
		b.watchURL(w.Name()),
	)
}

// RecoverStuck also refreshes the reserve gauges, since recovery is what
// releases reservations held by abandoned payouts.
func (b *BridgeJobs) RecoverStuck(sweeper Sweeper, reserves ReserveSource) *InstrumentedJob {
	return NewInstrumentedJobWithWebhook(
		JobRecoverStuck,
		func(ctx context.Context) error {
			report, err := sweeper.RecoverStuck(ctx)
			b.jobMetrics.SetPendingRecords("all", JobRecoverStuck, report.Finalized+report.Reset+report.Failed)
			if err != nil {
				return err
			}
			return b.refreshReserves(ctx, reserves)
		},
		b.statusManager,
		b.logger,
		10*time.Minute,
		b.heartbeat,
		b.webhooks.RecoverStuckURL,
	)
}

func (b *BridgeJobs) RetryPending(sweeper Sweeper) *InstrumentedJob {
	return NewInstrumentedJobWithWebhook(
		JobRetryPending,
		func(ctx context.Context) error {
			settled, err := sweeper.RetryPending(ctx)
			b.jobMetrics.SetPendingRecords("all", JobRetryPending, settled)
			return err
		},
		b.statusManager,
		b.logger,
		15*time.Minute,
		b.heartbeat,
		b.webhooks.RetryPendingURL,
	)
}

func (b *BridgeJobs) refreshReserves(ctx context.Context, source ReserveSource) error {
	if source == nil || b.relayerMetrics == nil {
		return nil
	}
	reserves, err := source.Reserves(ctx)
	if err != nil {
		return err
	}
	b.relayerMetrics.UpdateReserves(reserves)
	return nil
}
