package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/watcher"
)

type namedWatcher string

func (w namedWatcher) Name() string { return string(w) }

func (w namedWatcher) Poll(context.Context) (watcher.Batch, error) { return watcher.Batch{}, nil }

type watchRunnerFunc func(ctx context.Context, w watcher.Watcher) error

func (f watchRunnerFunc) Watch(ctx context.Context, w watcher.Watcher) error { return f(ctx, w) }

type fakeSweeper struct {
	report  relayer.RecoveryReport
	settled int
	err     error
}

func (f *fakeSweeper) RecoverStuck(context.Context) (relayer.RecoveryReport, error) {
	return f.report, f.err
}

func (f *fakeSweeper) RetryPending(context.Context) (int, error) {
	return f.settled, f.err
}

type staticReserves []model.ReserveLedger

func (s staticReserves) Reserves(context.Context) ([]model.ReserveLedger, error) {
	return s, nil
}

func newTestBridgeJobs(t *testing.T) (*BridgeJobs, *JobStatusManager, *recordingHeartbeat, *prometheus.Registry) {
	jsm, registry := newTestJobStatusManager(t)
	relayerMetrics := NewRelayerMetrics()
	relayerMetrics.MustRegister(registry)
	heartbeat := &recordingHeartbeat{}
	webhooks := config.UptimeWebhookConfig{
		WatchBtcURL:     "https://uptime.example/btc",
		WatchZecURL:     "https://uptime.example/zec",
		RecoverStuckURL: "https://uptime.example/recover",
		RetryPendingURL: "https://uptime.example/retry",
	}
	jobs := NewBridgeJobs(jsm, jsm.metrics, relayerMetrics, heartbeat, webhooks, setupTestLogger())
	return jobs, jsm, heartbeat, registry
}

func TestBridgeJobs_Watch(t *testing.T) {
	// Arrange
	jobs, jsm, heartbeat, _ := newTestBridgeJobs(t)
	var watched []string
	runner := watchRunnerFunc(func(_ context.Context, w watcher.Watcher) error {
		watched = append(watched, w.Name())
		if w.Name() == "zec" {
			return errors.New("zcashd connection refused")
		}
		return nil
	})

	// Act
	require.NoError(t, jobs.Watch(runner, namedWatcher("btc")).Execute(context.Background()))
	assert.Error(t, jobs.Watch(runner, namedWatcher("zec")).Execute(context.Background()))

	// Assert
	assert.Equal(t, []string{"btc", "zec"}, watched)
	assert.Equal(t, []string{"https://uptime.example/btc"}, heartbeat.calls())

	btc, _ := jsm.GetJobStatus("watch_btc")
	assert.Equal(t, JobStatusSuccess, btc.Status)
	zec, _ := jsm.GetJobStatus("watch_zec")
	assert.Equal(t, JobStatusFailed, zec.Status)
}

func TestBridgeJobs_RecoverStuckRefreshesReserves(t *testing.T) {
	// Arrange
	jobs, _, heartbeat, registry := newTestBridgeJobs(t)
	sweeper := &fakeSweeper{report: relayer.RecoveryReport{Finalized: 1, Reset: 2}}
	reserves := staticReserves{{Asset: model.ChainBTC, BootstrapAmount: 50000, ReservedAmount: 20000}}

	// Act
	err := jobs.RecoverStuck(sweeper, reserves).Execute(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"https://uptime.example/recover"}, heartbeat.calls())

	available := findMetric(t, registry, "bridge_reserve_available")
	assert.Equal(t, float64(30000), available.GetMetric()[0].GetGauge().GetValue())
	reserved := findMetric(t, registry, "bridge_reserve_reserved")
	assert.Equal(t, float64(20000), reserved.GetMetric()[0].GetGauge().GetValue())
	pending := findMetric(t, registry, "bridge_pending_records")
	assert.Equal(t, float64(3), pending.GetMetric()[0].GetGauge().GetValue())
}

func TestBridgeJobs_RetryPending(t *testing.T) {
	// Arrange
	jobs, jsm, heartbeat, _ := newTestBridgeJobs(t)
	sweeper := &fakeSweeper{err: errors.New("list retryable deposits: sql: database is closed")}

	// Act
	err := jobs.RetryPending(sweeper).Execute(context.Background())

	// Assert
	assert.Error(t, err)
	assert.Empty(t, heartbeat.calls())
	status, _ := jsm.GetJobStatus("retry_pending")
	assert.Equal(t, "database", status.Metadata["error_type"])
}

func TestRelayerMetrics_Observer(t *testing.T) {
	// Arrange
	m := NewRelayerMetrics()
	registry := prometheus.NewRegistry()
	m.MustRegister(registry)

	// Act
	m.ObserveOutcome(model.RecordKindDeposit, relayer.OutcomeSettled)
	m.ObserveOutcome(model.RecordKindDeposit, relayer.OutcomeSettled)
	m.ObserveOutcome(model.RecordKindWithdrawal, relayer.OutcomeInsufficientReserve)
	m.ObserveSettlement(model.RecordKindDeposit, "transient_failure")

	// Assert
	outcomes := findMetric(t, registry, "bridge_records_total")
	assert.Len(t, outcomes.GetMetric(), 2)
	for _, metric := range outcomes.GetMetric() {
		if labelValue(metric, "outcome") == string(relayer.OutcomeSettled) {
			assert.Equal(t, float64(2), metric.GetCounter().GetValue())
			assert.Equal(t, string(model.RecordKindDeposit), labelValue(metric, "kind"))
		}
	}
	attempts := findMetric(t, registry, "bridge_settlement_attempts_total")
	assert.Equal(t, "transient_failure", labelValue(attempts.GetMetric()[0], "result"))
}
