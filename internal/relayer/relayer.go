// Package relayer drives deposits and withdrawals through their state
// machines. The ledger row lock is the only thing that serialises work on a
// key; network calls to verifiers and the settlement executor are made with
// no lock held, between short locked steps that re-check the row.
package relayer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dwarvesf/zenz-bridge/internal/archive"
	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/consts"
	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/privacy"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/utils/webhook"
)

type Outcome string

const (
	OutcomeSettled              Outcome = "settled"
	OutcomeAlreadyProcessed     Outcome = "already_processed"
	OutcomeInProgress           Outcome = "in_progress"
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
	OutcomeDeferred             Outcome = "deferred"
	OutcomeInsufficientReserve  Outcome = "insufficient_reserve"
	OutcomeRejected             Outcome = "rejected"
	OutcomePaused               Outcome = "paused"
)

// IsDuplicate reports whether another caller already owns the record.
func (o Outcome) IsDuplicate() bool {
	return o == OutcomeAlreadyProcessed || o == OutcomeInProgress
}

type Result struct {
	Kind           model.RecordKind    `json:"kind"`
	Key            string              `json:"key"`
	Status         string              `json:"status"`
	Outcome        Outcome             `json:"outcome"`
	Reason         model.FailureReason `json:"reason,omitempty"`
	SettlementTxID string              `json:"settlement_tx_id,omitempty"`
}

type DepositRequest struct {
	Chain              model.Chain
	SourceTxID         string
	Amount             int64
	DestinationAddress string
}

type WithdrawalRequest struct {
	Signature     string
	Amount        int64
	PayoutChain   model.Chain
	PayoutAddress string
	// Encrypted marks PayoutAddress as a privacy gateway ciphertext.
	Encrypted bool
	Sender    string
}

// Settler is the settlement executor as seen by the relayer.
type Settler interface {
	ExecuteMint(ctx context.Context, key, destAddress string, amount int64) (string, error)
	ExecutePayout(ctx context.Context, payoutChain model.Chain, key, payoutAddress string, amount int64) (string, error)
	FindMint(ctx context.Context, key string) (string, bool, error)
	FindPayout(ctx context.Context, payoutChain model.Chain, key string) (string, bool, error)
	SupportsPayout(c model.Chain) bool
}

type Alerter interface {
	Notify(ctx context.Context, alert webhook.Alert)
}

// Observer receives outcome counts for metrics.
type Observer interface {
	ObserveOutcome(kind model.RecordKind, outcome Outcome)
	ObserveSettlement(kind model.RecordKind, result string)
}

type Config struct {
	MaxSettlementAttempts int
	VerifyTimeout         time.Duration
	NotFoundTimeout       time.Duration
	ProcessingTimeout     time.Duration
	SweepBatchSize        int
	MaxMintPerTx          int64
	Paused                bool
}

func ConfigFrom(c config.RelayerConfig) Config {
	return Config{
		MaxSettlementAttempts: c.MaxSettlementAttempts,
		VerifyTimeout:         c.VerifyTimeout,
		NotFoundTimeout:       c.NotFoundTimeout,
		ProcessingTimeout:     c.ProcessingTimeout,
		SweepBatchSize:        c.SweepBatchSize,
		MaxMintPerTx:          c.MaxMintPerTx,
		Paused:                c.Paused,
	}
}

type Deps struct {
	Ledger             *ledger.Ledger
	DepositVerifiers   []chain.Verifier
	WithdrawalVerifier chain.Verifier
	Settler            Settler
	Cipher             privacy.Cipher
	Archiver           *archive.Archiver
	Alerter            Alerter
	Observer           Observer
}

type Relayer struct {
	ledger      *ledger.Ledger
	verifiers   map[model.Chain]chain.Verifier
	withdrawals chain.Verifier
	settler     Settler
	cipher      privacy.Cipher
	archiver    *archive.Archiver
	alerter     Alerter
	observer    Observer
	cfg         Config
	paused      atomic.Bool
	logger      *logger.Logger
	now         func() time.Time
}

func New(deps Deps, cfg Config, logger *logger.Logger) *Relayer {
	if cfg.MaxSettlementAttempts <= 0 {
		cfg.MaxSettlementAttempts = consts.DefaultMaxSettlementAttempts
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = consts.DefaultSweepBatchSize
	}

	verifiers := make(map[model.Chain]chain.Verifier, len(deps.DepositVerifiers))
	for _, v := range deps.DepositVerifiers {
		verifiers[v.Chain()] = v
	}

	r := &Relayer{
		ledger:      deps.Ledger,
		verifiers:   verifiers,
		withdrawals: deps.WithdrawalVerifier,
		settler:     deps.Settler,
		cipher:      deps.Cipher,
		archiver:    deps.Archiver,
		alerter:     deps.Alerter,
		observer:    deps.Observer,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
	if r.cipher == nil {
		r.cipher = privacy.Passthrough{}
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	r.paused.Store(cfg.Paused)
	return r
}

// WithClock overrides the clock used for not-found windows.
func (r *Relayer) WithClock(now func() time.Time) *Relayer {
	r.now = now
	return r
}

// SetPaused stops new submissions and sweeps from touching the ledger.
func (r *Relayer) SetPaused(paused bool) {
	r.paused.Store(paused)
	r.logger.Info("[Relayer.SetPaused]", map[string]string{"paused": boolString(paused)})
}

func (r *Relayer) Paused() bool {
	return r.paused.Load()
}

func (r *Relayer) SupportsDeposit(c model.Chain) bool {
	_, ok := r.verifiers[c]
	return ok
}

func (r *Relayer) verifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.VerifyTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.VerifyTimeout)
}

// invariant alerts operators and passes err through. The row is left as it
// was so nothing is silently corrected.
func (r *Relayer) invariant(ctx context.Context, kind model.RecordKind, key string, err error) error {
	if !errors.Is(err, ledger.ErrInvariantViolation) {
		return err
	}
	r.logger.Error("[Relayer] invariant violation", map[string]string{
		"kind":  string(kind),
		"key":   key,
		"error": err.Error(),
	})
	if r.alerter != nil {
		r.alerter.Notify(context.WithoutCancel(ctx), webhook.Alert{
			Severity: "critical",
			Title:    "ledger invariant violation",
			Details: map[string]string{
				"kind":  string(kind),
				"key":   key,
				"error": err.Error(),
			},
		})
	}
	return err
}

func (r *Relayer) archive(ctx context.Context, rc archive.Receipt) {
	if r.archiver == nil {
		return
	}
	rc.SettledAt = r.now().UTC()
	if err := r.archiver.Archive(context.WithoutCancel(ctx), rc); err != nil {
		r.logger.Warn("[Relayer.archive] receipt not stored", map[string]string{
			"key":   rc.Key,
			"error": err.Error(),
		})
	}
}

func (r *Relayer) finish(res Result) Result {
	r.observer.ObserveOutcome(res.Kind, res.Outcome)
	return res
}

// classify reduces a verifier or settlement error to what the state machine
// does next.
type errorClass int

const (
	classTransient errorClass = iota
	classNotFound
	classPermanent
)

func classify(err error) errorClass {
	switch {
	case errors.Is(err, chain.ErrTransactionNotFound):
		return classNotFound
	case chain.IsPermanent(err), errors.Is(err, privacy.ErrRejected):
		return classPermanent
	default:
		// anything unrecognised is retried, as the settlement executor does
		return classTransient
	}
}

func failureReason(err error) model.FailureReason {
	if errors.Is(err, privacy.ErrRejected) {
		return model.FailureReasonInvalidAddress
	}
	return chain.FailureReason(err)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(model.RecordKind, Outcome) {}
func (nopObserver) ObserveSettlement(model.RecordKind, string) {}
