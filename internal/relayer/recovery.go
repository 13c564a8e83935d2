package relayer

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type RecoveryReport struct {
	Finalized int `json:"finalized"`
	Reset     int `json:"reset"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// RecoverStuck resolves records that have sat in Processing longer than the
// processing timeout. A settlement found on chain finalizes the record;
// otherwise it goes back to its pre-Processing status, or to Failed once its
// settlement attempts are used up.
func (r *Relayer) RecoverStuck(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	if r.Paused() {
		return report, nil
	}

	deposits, err := r.ledger.StuckDeposits(ctx, r.cfg.ProcessingTimeout, r.cfg.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("list stuck deposits: %w", err)
	}
	for i := range deposits {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r.recoverDeposit(ctx, &deposits[i], &report)
	}

	withdrawals, err := r.ledger.StuckWithdrawals(ctx, r.cfg.ProcessingTimeout, r.cfg.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("list stuck withdrawals: %w", err)
	}
	for i := range withdrawals {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r.recoverWithdrawal(ctx, &withdrawals[i], &report)
	}

	if report != (RecoveryReport{}) {
		r.logger.Info("[Relayer.RecoverStuck] sweep done", map[string]string{
			"finalized": fmt.Sprint(report.Finalized),
			"reset":     fmt.Sprint(report.Reset),
			"failed":    fmt.Sprint(report.Failed),
			"errors":    fmt.Sprint(report.Errors),
		})
	}
	return report, nil
}

func (r *Relayer) recoverDeposit(ctx context.Context, stuck *model.DepositRecord, report *RecoveryReport) {
	key := ledger.DepositKey(stuck.SourceChain, stuck.SourceTxID)

	txID, found, err := r.settler.FindMint(ctx, stuck.SettlementKey())
	if err != nil {
		report.Errors++
		r.logger.Warn("[Relayer.recoverDeposit][FindMint]", map[string]string{"key": key, "error": err.Error()})
		return
	}

	err = r.ledger.LockDeposit(ctx, stuck.SourceChain, stuck.SourceTxID, func(tx *gorm.DB, rec *model.DepositRecord) error {
		if !sameAttempt(rec.Status == model.DepositStatusProcessing, rec.ProcessingStartedAt, stuck.ProcessingStartedAt) {
			return nil
		}
		if found {
			var res Result
			if err := r.completeDeposit(tx, rec, txID, &res); err != nil {
				return err
			}
			report.Finalized++
			return nil
		}
		if rec.SettlementAttempts >= r.cfg.MaxSettlementAttempts {
			if err := r.ledger.FailDeposit(tx, rec, model.FailureReasonRetriesExhausted, fmt.Errorf("no mint found after %d attempts", rec.SettlementAttempts)); err != nil {
				return err
			}
			report.Failed++
			return nil
		}
		if err := r.ledger.ResetDeposit(tx, rec); err != nil {
			return err
		}
		report.Reset++
		return nil
	})
	if err != nil {
		report.Errors++
		r.logger.Error("[Relayer.recoverDeposit]", map[string]string{"key": key, "error": r.invariant(ctx, model.RecordKindDeposit, key, err).Error()})
	}
}

func (r *Relayer) recoverWithdrawal(ctx context.Context, stuck *model.WithdrawalRecord, report *RecoveryReport) {
	key := stuck.SourceTxSignature

	txID, found, err := r.settler.FindPayout(ctx, stuck.PayoutChain, stuck.SettlementKey())
	if err != nil {
		report.Errors++
		r.logger.Warn("[Relayer.recoverWithdrawal][FindPayout]", map[string]string{"key": key, "error": err.Error()})
		return
	}

	err = r.ledger.LockWithdrawal(ctx, key, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		if !sameAttempt(rec.Status == model.WithdrawalStatusProcessing, rec.ProcessingStartedAt, stuck.ProcessingStartedAt) {
			return nil
		}
		if found {
			var res Result
			if err := r.completeWithdrawal(tx, rec, txID, &res); err != nil {
				return err
			}
			report.Finalized++
			return nil
		}
		if err := r.ledger.ReleaseFunds(tx, rec); err != nil {
			return err
		}
		if rec.SettlementAttempts >= r.cfg.MaxSettlementAttempts {
			if err := r.ledger.FailWithdrawal(tx, rec, model.FailureReasonRetriesExhausted, fmt.Errorf("no payout found after %d attempts", rec.SettlementAttempts)); err != nil {
				return err
			}
			report.Failed++
			return nil
		}
		if err := r.ledger.ResetWithdrawal(tx, rec); err != nil {
			return err
		}
		report.Reset++
		return nil
	})
	if err != nil {
		report.Errors++
		r.logger.Error("[Relayer.recoverWithdrawal]", map[string]string{"key": key, "error": r.invariant(ctx, model.RecordKindWithdrawal, key, err).Error()})
	}
}

// sameAttempt guards against acting on a row that left Processing, or
// re-entered it, after it was listed.
func sameAttempt(processing bool, current, listed *time.Time) bool {
	if !processing || current == nil || listed == nil {
		return false
	}
	return current.Equal(*listed)
}

// RetryPending resubmits records that have not reached settlement: deposits
// awaiting confirmation or reset by a sweep, and withdrawals still Pending.
// It returns how many records settled.
func (r *Relayer) RetryPending(ctx context.Context) (int, error) {
	if r.Paused() {
		return 0, nil
	}

	settled := 0
	deposits, err := r.ledger.RetryableDeposits(ctx, r.depositChains(), r.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable deposits: %w", err)
	}
	for i := range deposits {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		d := deposits[i]
		// records that make no progress rotate to the back of the queue
		if err := r.ledger.MarkDepositAttempted(ctx, &d); err != nil {
			return settled, fmt.Errorf("mark deposit attempted: %w", err)
		}
		res, err := r.processDeposit(ctx, &d)
		if err != nil {
			r.logger.Error("[Relayer.RetryPending][processDeposit]", map[string]string{
				"key":   ledger.DepositKey(d.SourceChain, d.SourceTxID),
				"error": err.Error(),
			})
			continue
		}
		if res.Outcome == OutcomeSettled {
			settled++
		}
	}

	if r.withdrawals == nil {
		return settled, nil
	}
	withdrawals, err := r.ledger.RetryableWithdrawals(ctx, r.payoutChains(), r.cfg.SweepBatchSize)
	if err != nil {
		return settled, fmt.Errorf("list retryable withdrawals: %w", err)
	}
	for i := range withdrawals {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		w := withdrawals[i]
		if err := r.ledger.MarkWithdrawalAttempted(ctx, &w); err != nil {
			return settled, fmt.Errorf("mark withdrawal attempted: %w", err)
		}
		res, err := r.processWithdrawal(ctx, &w)
		if err != nil {
			r.logger.Error("[Relayer.RetryPending][processWithdrawal]", map[string]string{
				"key":   w.SourceTxSignature,
				"error": err.Error(),
			})
			continue
		}
		if res.Outcome == OutcomeSettled {
			settled++
		}
	}
	return settled, nil
}

func (r *Relayer) depositChains() []model.Chain {
	var out []model.Chain
	for _, c := range model.AllChains {
		if r.SupportsDeposit(c) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Relayer) payoutChains() []model.Chain {
	var out []model.Chain
	for _, c := range model.AllChains {
		if r.settler.SupportsPayout(c) {
			out = append(out, c)
		}
	}
	return out
}
