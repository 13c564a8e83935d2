package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwarvesf/zenz-bridge/internal/handler"
	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	transport "github.com/dwarvesf/zenz-bridge/internal/transport/http"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, appConfig, logger)
	if err != nil {
		logger.Fatal("[server.Init] failed to build relayer", map[string]string{
			"error": err.Error(),
		})
	}
	defer app.Close()

	jobMetrics := monitoring.NewBackgroundJobMetrics()
	jobMetrics.MustRegister(app.Registry)
	jobStatusManager := monitoring.NewJobStatusManager(logger, jobMetrics)
	defer jobStatusManager.Stop()

	c := scheduleJobs(app, jobStatusManager, jobMetrics)
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	if len(appConfig.Kafka.Brokers) > 0 {
		go runKafka(ctx, app)
	}

	httpMetrics := monitoring.NewHTTPMetrics()
	httpMetrics.MustRegister(app.Registry)

	router := transport.NewHttpServer(appConfig, logger, handler.Deps{
		Relayer:          app.Relayer,
		Ledger:           app.Ledger,
		DB:               app.DB,
		Probes:           app.chains.probes,
		Breakers:         app.chains.breakers,
		JobStatusManager: jobStatusManager,
		HTTPMetrics:      httpMetrics,
		Registry:         app.Registry,
	})

	srv := &http.Server{
		Addr:              ":" + appConfig.ApiServer.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("[server.Init] listening", map[string]string{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[server.Init] http server stopped", map[string]string{
				"error": err.Error(),
			})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[server.Init] shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("[server.Init] http shutdown", map[string]string{
			"error": err.Error(),
		})
	}
}

// scheduleJobs registers one watch job per chain plus the stuck-record
// sweep and the pending retry pass.
func scheduleJobs(app *App, jobStatusManager *monitoring.JobStatusManager, jobMetrics *monitoring.BackgroundJobMetrics) *cron.Cron {
	schedules := app.Config.Schedules
	jobs := monitoring.NewBridgeJobs(jobStatusManager, jobMetrics, app.RelayerMetrics, app.Webhook, app.Config.UptimeWebhooks, app.Logger)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	add := func(spec string, job cron.Job, name string) {
		if _, err := c.AddJob(spec, job); err != nil {
			app.Logger.Fatal("[scheduleJobs] invalid schedule", map[string]string{
				"job":   name,
				"spec":  spec,
				"error": err.Error(),
			})
		}
	}

	for _, w := range app.Watchers() {
		job := jobs.Watch(app.Dispatcher, w)
		add(schedules.WatchPeriod, job, job.Name())
	}
	sweep := jobs.RecoverStuck(app.Relayer, app.Ledger)
	add(schedules.SweepPeriod, sweep, sweep.Name())
	retry := jobs.RetryPending(app.Relayer)
	add(schedules.RetryPeriod, retry, retry.Name())

	return c
}

func runKafka(ctx context.Context, app *App) {
	reader, err := watcher.NewKafkaReader(app.Config.Kafka)
	if err != nil {
		app.Logger.Error("[runKafka] event feed disabled", map[string]string{
			"error": err.Error(),
		})
		return
	}
	consumer := watcher.NewKafkaConsumer(reader, app.Dispatcher, app.Logger)
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		app.Logger.Error("[runKafka] consumer stopped", map[string]string{
			"error": err.Error(),
		})
	}
}
