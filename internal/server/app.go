package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/archive"
	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	"github.com/dwarvesf/zenz-bridge/internal/privacy"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/settlement"
	"github.com/dwarvesf/zenz-bridge/internal/store"
	pgstore "github.com/dwarvesf/zenz-bridge/internal/store/postgres"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/utils/secrets"
	"github.com/dwarvesf/zenz-bridge/internal/utils/webhook"
	"github.com/dwarvesf/zenz-bridge/internal/watcher"
)

var ErrNoMinter = errors.New("server: MINTER_BASE_URL and SOL_RPC_URL are required to settle deposits")

// App is the relayer and everything it is wired to. The HTTP server and the
// operator CLI both run on top of it.
type App struct {
	Config         *config.AppConfig
	Logger         *logger.Logger
	DB             *gorm.DB
	Ledger         *ledger.Ledger
	Relayer        *relayer.Relayer
	Dispatcher     *watcher.Dispatcher
	Webhook        *webhook.Client
	Registry       *prometheus.Registry
	APIMetrics     *monitoring.ExternalAPIMetrics
	RelayerMetrics *monitoring.RelayerMetrics

	chains *chains
}

// NewApp connects to postgres and the configured chain nodes and builds the
// relayer. Reserve bootstrap amounts from config are applied before it
// returns.
func NewApp(ctx context.Context, appConfig *config.AppConfig, logger *logger.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	apiMetrics := monitoring.NewExternalAPIMetrics()
	apiMetrics.MustRegister(registry)
	relayerMetrics := monitoring.NewRelayerMetrics()
	relayerMetrics.MustRegister(registry)

	secretProvider, err := secrets.New(ctx, appConfig.Secrets)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	db := pgstore.New(appConfig, logger)
	l := ledger.New(db, store.New(), logger)

	cs, err := buildChains(ctx, appConfig, secretProvider, apiMetrics, logger)
	if err != nil {
		return nil, err
	}
	if cs.minter == nil {
		return nil, ErrNoMinter
	}

	receipts, err := archive.New(ctx, appConfig.Archive)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	alerts := webhook.New(logger, appConfig.AlertWebhookURL)

	executor := settlement.New(cs.minter, cs.payouts, settlement.RetryPolicy{
		MaxAttempts: appConfig.Relayer.MaxSettlementAttempts,
		BaseDelay:   appConfig.Relayer.RetryBaseDelay,
		MaxDelay:    appConfig.Relayer.RetryMaxDelay,
		CallTimeout: appConfig.Relayer.SettleTimeout,
	}, logger)

	r := relayer.New(relayer.Deps{
		Ledger:             l,
		DepositVerifiers:   cs.depositVerifiers,
		WithdrawalVerifier: cs.withdrawalVerifier,
		Settler:            executor,
		Cipher:             privacy.New(appConfig.Privacy, logger),
		Archiver:           archive.NewArchiver(receipts),
		Alerter:            alerts,
		Observer:           relayerMetrics,
	}, relayer.ConfigFrom(appConfig.Relayer), logger)

	app := &App{
		Config:         appConfig,
		Logger:         logger,
		DB:             db,
		Ledger:         l,
		Relayer:        r,
		Dispatcher:     watcher.NewDispatcher(r, logger),
		Webhook:        alerts,
		Registry:       registry,
		APIMetrics:     apiMetrics,
		RelayerMetrics: relayerMetrics,
		chains:         cs,
	}

	if err := app.seedReserves(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// seedReserves raises each asset's bootstrap amount to the configured value.
// It never lowers one; operators do that through bridgectl.
func (a *App) seedReserves(ctx context.Context) error {
	seeds := map[model.Chain]int64{
		model.ChainBTC: a.Config.Relayer.Bootstrap.BTC,
		model.ChainZEC: a.Config.Relayer.Bootstrap.ZEC,
		model.ChainSOL: a.Config.Relayer.Bootstrap.SOL,
	}
	for _, asset := range model.AllChains {
		amount := seeds[asset]
		if amount <= 0 {
			continue
		}
		current, err := a.Ledger.Reserve(ctx, asset)
		if err != nil {
			return fmt.Errorf("read reserve %s: %w", asset, err)
		}
		if current.BootstrapAmount >= amount {
			continue
		}
		if _, err := a.Ledger.Bootstrap(ctx, asset, amount); err != nil {
			return fmt.Errorf("bootstrap reserve %s: %w", asset, err)
		}
		a.Logger.Info("[seedReserves] reserve bootstrapped", map[string]string{
			"asset":    string(asset),
			"amount":   fmt.Sprint(amount),
			"previous": fmt.Sprint(current.BootstrapAmount),
		})
	}
	return nil
}

// Watchers are the chain pollers for every configured chain.
func (a *App) Watchers() []watcher.Watcher {
	return a.chains.watchers
}

// Close releases the database pool.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
