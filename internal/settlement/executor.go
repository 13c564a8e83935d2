// Package settlement executes the paired transfer for a verified ledger
// record: a mint on Solana for deposits, a native payout for withdrawals.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

var (
	ErrRetriesExhausted = errors.New("settlement: retries exhausted")
	ErrUnsupportedChain = errors.New("settlement: no broadcaster for chain")
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		CallTimeout: time.Minute,
	}
}

// Delay is the wait before attempt n+1, doubling from BaseDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

type Executor struct {
	minter  chain.Broadcaster
	payouts map[model.Chain]chain.Broadcaster
	policy  RetryPolicy
	logger  *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(minter chain.Broadcaster, payouts []chain.Broadcaster, policy RetryPolicy, logger *logger.Logger) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	byChain := make(map[model.Chain]chain.Broadcaster, len(payouts))
	for _, b := range payouts {
		byChain[b.Chain()] = b
	}
	return &Executor{
		minter:  minter,
		payouts: byChain,
		policy:  policy,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// WithSleep replaces the backoff sleep, for tests.
func (e *Executor) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Executor {
	e.sleep = sleep
	return e
}

func (e *Executor) ExecuteMint(ctx context.Context, key, destAddress string, amount int64) (string, error) {
	return e.execute(ctx, e.minter, chain.Transfer{Key: key, Address: destAddress, Amount: amount})
}

func (e *Executor) ExecutePayout(ctx context.Context, payoutChain model.Chain, key, payoutAddress string, amount int64) (string, error) {
	b, ok := e.payouts[payoutChain]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, payoutChain)
	}
	return e.execute(ctx, b, chain.Transfer{Key: key, Address: payoutAddress, Amount: amount})
}

// FindMint looks for a mint already made for key.
func (e *Executor) FindMint(ctx context.Context, key string) (string, bool, error) {
	return e.find(ctx, e.minter, key)
}

func (e *Executor) FindPayout(ctx context.Context, payoutChain model.Chain, key string) (string, bool, error) {
	b, ok := e.payouts[payoutChain]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedChain, payoutChain)
	}
	return e.find(ctx, b, key)
}

func (e *Executor) SupportsPayout(c model.Chain) bool {
	_, ok := e.payouts[c]
	return ok
}

func (e *Executor) find(ctx context.Context, b chain.Broadcaster, key string) (string, bool, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return b.FindExisting(callCtx, key)
}

// execute runs find-then-broadcast up to MaxAttempts times. Known permanent
// errors are returned as is; anything else, unrecognised errors included, is
// retried, which the find step keeps from paying twice.
func (e *Executor) execute(ctx context.Context, b chain.Broadcaster, t chain.Transfer) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		txID, err := e.attempt(ctx, b, t)
		if err == nil {
			return txID, nil
		}
		if chain.IsPermanent(err) {
			e.logger.Error("[Executor.execute] permanent failure", map[string]string{
				"key":     t.Key,
				"chain":   string(b.Chain()),
				"attempt": strconv.Itoa(attempt),
				"error":   err.Error(),
			})
			return "", err
		}

		lastErr = err
		e.logger.Warn("[Executor.execute] retryable failure", map[string]string{
			"key":     t.Key,
			"chain":   string(b.Chain()),
			"attempt": strconv.Itoa(attempt),
			"error":   err.Error(),
		})

		if attempt == e.policy.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, e.policy.Delay(attempt)); err != nil {
			return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, chain.Unavailable(err))
		}
	}

	return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func (e *Executor) attempt(ctx context.Context, b chain.Broadcaster, t chain.Transfer) (string, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	txID, found, err := b.FindExisting(callCtx, t.Key)
	if err != nil {
		return "", err
	}
	if found {
		e.logger.Info("[Executor.attempt] transfer already on chain", map[string]string{
			"key":  t.Key,
			"txid": txID,
		})
		return txID, nil
	}

	txID, err = b.Broadcast(callCtx, t)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", chain.Unavailable(err)
		}
		return "", err
	}
	return txID, nil
}

func (e *Executor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.policy.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.policy.CallTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
