package server

import (
	"context"
	"fmt"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/chain/btc"
	"github.com/dwarvesf/zenz-bridge/internal/chain/btc/blockstream"
	"github.com/dwarvesf/zenz-bridge/internal/chain/sol"
	"github.com/dwarvesf/zenz-bridge/internal/chain/zec"
	"github.com/dwarvesf/zenz-bridge/internal/handler/health"
	"github.com/dwarvesf/zenz-bridge/internal/monitoring"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/utils/secrets"
	"github.com/dwarvesf/zenz-bridge/internal/watcher"
)

// chains holds every chain-facing component, each verifier and broadcaster
// already behind its circuit breaker.
type chains struct {
	depositVerifiers   []chain.Verifier
	withdrawalVerifier chain.Verifier
	minter             chain.Broadcaster
	payouts            []chain.Broadcaster
	watchers           []watcher.Watcher
	probes             []health.Probe
	breakers           []health.Breaker
}

func (c *chains) addVerifier(v *monitoring.CircuitBreakerVerifier) {
	c.depositVerifiers = append(c.depositVerifiers, v)
	c.breakers = append(c.breakers, v)
}

func (c *chains) addPayout(b *monitoring.CircuitBreakerBroadcaster) {
	c.payouts = append(c.payouts, b)
	c.breakers = append(c.breakers, b)
}

// buildChains dials the configured nodes. A chain whose node is not
// configured is left out, so its deposits are rejected as unsupported.
func buildChains(ctx context.Context, appConfig *config.AppConfig, secretProvider secrets.Provider, apiMetrics *monitoring.ExternalAPIMetrics, logger *logger.Logger) (*chains, error) {
	out := &chains{}

	if err := out.buildBitcoin(ctx, appConfig, secretProvider, apiMetrics, logger); err != nil {
		return nil, err
	}
	if err := out.buildZcash(ctx, appConfig, apiMetrics, logger); err != nil {
		return nil, err
	}
	if err := out.buildSolana(ctx, appConfig, apiMetrics, logger); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chains) buildBitcoin(ctx context.Context, appConfig *config.AppConfig, secretProvider secrets.Provider, apiMetrics *monitoring.ExternalAPIMetrics, logger *logger.Logger) error {
	cfg := appConfig.Bitcoin
	if cfg.BlockstreamAPIURL == "" {
		logger.Warn("[buildChains] bitcoin disabled, no blockstream url", nil)
		return nil
	}

	client := blockstream.New(appConfig, logger)
	breakerConfig := monitoring.ConfigFor("blockstream_api")

	if cfg.TreasuryAddress != "" {
		c.addVerifier(monitoring.NewCircuitBreakerVerifier(
			btc.NewVerifier(client, cfg.TreasuryAddress, cfg.MinConfirmations, logger),
			"btc_verifier", breakerConfig, apiMetrics, logger))
		c.watchers = append(c.watchers, watcher.NewBTCWatcher(client, cfg.TreasuryAddress, logger))
	}

	wif := cfg.WalletWIF
	if wif == "" && cfg.WalletSecretKey != "" {
		v, err := secretProvider.Get(ctx, cfg.WalletSecretKey)
		if err != nil {
			logger.Warn("[buildChains] btc payouts disabled, wallet key unavailable", map[string]string{
				"secret": cfg.WalletSecretKey,
				"error":  err.Error(),
			})
		}
		wif = v
	}
	if wif != "" {
		params, err := btc.NetworkParams(cfg.Network)
		if err != nil {
			return err
		}
		payout, err := btc.NewPayout(client, params, wif, cfg.FeeTargetBlocks, logger)
		if err != nil {
			return fmt.Errorf("btc payout: %w", err)
		}
		c.addPayout(monitoring.NewCircuitBreakerBroadcaster(payout, "btc_payout", breakerConfig, apiMetrics, logger))
	}

	c.probes = append(c.probes, health.NewProbe("blockstream", func(ctx context.Context) error {
		_, err := client.GetTipHeight(ctx)
		return err
	}))
	return nil
}

func (c *chains) buildZcash(ctx context.Context, appConfig *config.AppConfig, apiMetrics *monitoring.ExternalAPIMetrics, logger *logger.Logger) error {
	cfg := appConfig.Zcash
	if cfg.RPCURL == "" {
		logger.Warn("[buildChains] zcash disabled, no rpc url", nil)
		return nil
	}

	client, err := zec.Dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dial zcashd: %w", err)
	}
	breakerConfig := monitoring.ConfigFor("zcashd_rpc")

	if cfg.TreasuryAddress != "" {
		c.addVerifier(monitoring.NewCircuitBreakerVerifier(
			zec.NewVerifier(client, cfg.TreasuryAddress, cfg.MinConfirmations, logger),
			"zec_verifier", breakerConfig, apiMetrics, logger))
		c.watchers = append(c.watchers, watcher.NewZECWatcher(client, cfg.TreasuryAddress, logger))
	}
	c.addPayout(monitoring.NewCircuitBreakerBroadcaster(zec.NewPayout(client, logger), "zec_payout", breakerConfig, apiMetrics, logger))

	c.probes = append(c.probes, health.NewProbe("zcashd", func(ctx context.Context) error {
		_, err := client.GetBlockCount(ctx)
		return err
	}))
	return nil
}

func (c *chains) buildSolana(ctx context.Context, appConfig *config.AppConfig, apiMetrics *monitoring.ExternalAPIMetrics, logger *logger.Logger) error {
	cfg := appConfig.Solana
	if cfg.RPCURL == "" {
		logger.Warn("[buildChains] solana disabled, no rpc url", nil)
		return nil
	}

	client, err := sol.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial solana: %w", err)
	}
	rpcConfig := monitoring.ConfigFor("solana_rpc")
	mintConfig := monitoring.ConfigFor("mint_service")

	var deposits *sol.DepositVerifier
	if cfg.TreasuryAddress != "" {
		deposits = sol.NewDepositVerifier(client, cfg.TreasuryAddress, cfg.MinConfirmations, logger)
		c.addVerifier(monitoring.NewCircuitBreakerVerifier(deposits, "sol_verifier", rpcConfig, apiMetrics, logger))
	}

	mode := sol.WithdrawalMode(cfg.WithdrawalMode)
	withdrawalAddress := cfg.BridgeProgramID
	if mode == sol.WithdrawalModeTransfer {
		withdrawalAddress = cfg.CustodyTokenAccount
	}
	withdrawals := sol.NewWithdrawalVerifier(client, mode, cfg.BridgeProgramID, cfg.CustodyTokenAccount, cfg.MinConfirmations, logger)
	wrapped := monitoring.NewCircuitBreakerVerifier(withdrawals, "sol_withdrawal_verifier", rpcConfig, apiMetrics, logger)
	c.withdrawalVerifier = wrapped
	c.breakers = append(c.breakers, wrapped)

	// a nil decoder skips that side of the watcher
	var depositDecoder interface {
		Decode(tx *sol.Transaction) (sol.Deposit, bool)
	}
	if deposits != nil {
		depositDecoder = deposits
	}
	c.watchers = append(c.watchers, watcher.NewSOLWatcher(client, depositDecoder, cfg.TreasuryAddress, withdrawals, withdrawalAddress, logger))

	if appConfig.Minter.BaseURL != "" {
		minter := monitoring.NewCircuitBreakerBroadcaster(sol.NewMinter(appConfig.Minter, logger), "sol_minter", mintConfig, apiMetrics, logger)
		c.minter = minter
		c.breakers = append(c.breakers, minter)
		c.addPayout(monitoring.NewCircuitBreakerBroadcaster(sol.NewTransferer(appConfig.Minter, logger), "sol_payout", mintConfig, apiMetrics, logger))
	}

	probeAddress := cfg.BridgeProgramID
	if probeAddress == "" {
		probeAddress = cfg.TreasuryAddress
	}
	c.probes = append(c.probes, health.NewProbe("solana", func(ctx context.Context) error {
		_, err := client.GetSignaturesForAddress(ctx, probeAddress, sol.SignaturesOptions{Limit: 1})
		return err
	}))
	return nil
}
