package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/handler/admin"
	"github.com/dwarvesf/zenz-bridge/internal/handler/deposit"
	"github.com/dwarvesf/zenz-bridge/internal/handler/health"
	"github.com/dwarvesf/zenz-bridge/internal/handler/metrics"
	"github.com/dwarvesf/zenz-bridge/internal/handler/record"
	"github.com/dwarvesf/zenz-bridge/internal/handler/reserve"
	"github.com/dwarvesf/zenz-bridge/internal/handler/withdrawal"
	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

type Handler struct {
	DepositHandler    deposit.IHandler
	WithdrawalHandler withdrawal.IHandler
	RecordHandler     record.IHandler
	ReserveHandler    reserve.IHandler
	AdminHandler      admin.IHandler
	HealthHandler     health.IHealthHandler
	MetricsHandler    *metrics.MetricsHandler
}

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Relayer          *relayer.Relayer
	Ledger           *ledger.Ledger
	DB               *gorm.DB
	Probes           []health.Probe
	Breakers         []health.Breaker
	JobStatusManager *monitoring.JobStatusManager
	HTTPMetrics      *monitoring.HTTPMetrics
	Registry         *prometheus.Registry
}

func New(appConfig *config.AppConfig, logger *logger.Logger, deps Deps) *Handler {
	var recorder *monitoring.BusinessMetricsRecorder
	if deps.HTTPMetrics != nil {
		recorder = monitoring.NewBusinessMetricsRecorder(deps.HTTPMetrics)
	}

	return &Handler{
		DepositHandler:    deposit.New(deps.Relayer, logger, recorder),
		WithdrawalHandler: withdrawal.New(deps.Relayer, logger, recorder),
		RecordHandler:     record.New(deps.Relayer, logger, recorder),
		ReserveHandler:    reserve.New(deps.Ledger, logger),
		AdminHandler:      admin.New(deps.Relayer, appConfig.ApiServer.AdminToken, logger, recorder),
		HealthHandler:     health.New(logger, deps.DB, deps.Probes, deps.Breakers, deps.JobStatusManager),
		MetricsHandler:    metrics.NewMetricsHandler(deps.Registry),
	}
}
