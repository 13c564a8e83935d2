package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/store"
	"github.com/dwarvesf/zenz-bridge/internal/store/depositrecord"
	"github.com/dwarvesf/zenz-bridge/internal/store/withdrawalrecord"
)

// ReserveFunds earmarks amount of the payout asset for rec. It reports false,
// leaving every counter untouched, when the available reserve cannot cover it.
// It must run in the same transaction that moves rec into Processing.
func (l *Ledger) ReserveFunds(tx *gorm.DB, rec *model.WithdrawalRecord, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	if rec.ReservedAmount != 0 {
		return false, fmt.Errorf("%w: withdrawal %s already holds %d reserved", ErrInvariantViolation, rec.SourceTxSignature, rec.ReservedAmount)
	}

	r, err := l.store.ReserveLedger.GetForUpdate(tx, rec.PayoutChain)
	if err != nil {
		return false, fmt.Errorf("lock reserve %s: %w", rec.PayoutChain, err)
	}
	if r.Available() < amount {
		return false, nil
	}

	r.ReservedAmount += amount
	if err := l.saveReserve(tx, r); err != nil {
		return false, err
	}

	rec.ReservedAmount = amount
	if err := l.store.WithdrawalRecord.Save(tx, rec); err != nil {
		return false, fmt.Errorf("save withdrawal: %w", err)
	}
	return true, nil
}

// ReleaseFunds returns a withdrawal's reservation to the available pool.
func (l *Ledger) ReleaseFunds(tx *gorm.DB, rec *model.WithdrawalRecord) error {
	if rec.ReservedAmount == 0 {
		return nil
	}

	r, err := l.store.ReserveLedger.GetForUpdate(tx, rec.PayoutChain)
	if err != nil {
		return fmt.Errorf("lock reserve %s: %w", rec.PayoutChain, err)
	}

	r.ReservedAmount -= rec.ReservedAmount
	if err := l.saveReserve(tx, r); err != nil {
		return err
	}

	rec.ReservedAmount = 0
	return l.store.WithdrawalRecord.Save(tx, rec)
}

// SettleWithdrawal converts the reservation into a completed outflow.
func (l *Ledger) SettleWithdrawal(tx *gorm.DB, rec *model.WithdrawalRecord) error {
	if rec.ReservedAmount <= 0 {
		return fmt.Errorf("%w: withdrawal %s settled without a reservation", ErrInvariantViolation, rec.SourceTxSignature)
	}

	r, err := l.store.ReserveLedger.GetForUpdate(tx, rec.PayoutChain)
	if err != nil {
		return fmt.Errorf("lock reserve %s: %w", rec.PayoutChain, err)
	}

	r.ReservedAmount -= rec.ReservedAmount
	r.WithdrawnAmount += rec.ReservedAmount
	if err := l.saveReserve(tx, r); err != nil {
		return err
	}

	rec.ReservedAmount = 0
	return l.store.WithdrawalRecord.Save(tx, rec)
}

// CreditDeposit adds a processed deposit to its source asset's reserve.
func (l *Ledger) CreditDeposit(tx *gorm.DB, rec *model.DepositRecord) error {
	if rec.Amount <= 0 {
		return ErrInvalidAmount
	}

	r, err := l.store.ReserveLedger.GetForUpdate(tx, rec.SourceChain)
	if err != nil {
		return fmt.Errorf("lock reserve %s: %w", rec.SourceChain, err)
	}

	r.DepositedAmount += rec.Amount
	return l.saveReserve(tx, r)
}

func (l *Ledger) saveReserve(tx *gorm.DB, r *model.ReserveLedger) error {
	if !r.Consistent() {
		return fmt.Errorf("%w: reserve %s bootstrap=%d deposited=%d withdrawn=%d reserved=%d",
			ErrInvariantViolation, r.Asset, r.BootstrapAmount, r.DepositedAmount, r.WithdrawnAmount, r.ReservedAmount)
	}
	if err := l.store.ReserveLedger.Save(tx, r); err != nil {
		return fmt.Errorf("save reserve %s: %w", r.Asset, err)
	}
	return nil
}

// Bootstrap sets the opening balance of an asset. It may be raised or lowered
// but never below what is already committed.
func (l *Ledger) Bootstrap(ctx context.Context, asset model.Chain, amount int64) (*model.ReserveLedger, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var out *model.ReserveLedger
	err := store.DoInTx(ctx, l.db, func(tx *gorm.DB) error {
		r, err := l.store.ReserveLedger.GetForUpdate(tx, asset)
		if err != nil {
			return fmt.Errorf("lock reserve %s: %w", asset, err)
		}
		r.BootstrapAmount = amount
		if err := l.saveReserve(tx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) Reserve(ctx context.Context, asset model.Chain) (*model.ReserveLedger, error) {
	r, err := l.store.ReserveLedger.Get(l.db.WithContext(ctx), asset)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ReserveLedger{Asset: asset}, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (l *Ledger) Reserves(ctx context.Context) ([]model.ReserveLedger, error) {
	return l.store.ReserveLedger.List(l.db.WithContext(ctx))
}

// StuckDeposits lists Processing deposits whose settlement started before cutoff.
func (l *Ledger) StuckDeposits(ctx context.Context, olderThan time.Duration, limit int) ([]model.DepositRecord, error) {
	return l.store.DepositRecord.ListStuck(l.db.WithContext(ctx), l.now().Add(-olderThan), limit)
}

func (l *Ledger) StuckWithdrawals(ctx context.Context, olderThan time.Duration, limit int) ([]model.WithdrawalRecord, error) {
	return l.store.WithdrawalRecord.ListStuck(l.db.WithContext(ctx), l.now().Add(-olderThan), limit)
}

// RetryableDeposits lists deposits from chains that have not reached
// settlement yet, least recently retried first.
func (l *Ledger) RetryableDeposits(ctx context.Context, chains []model.Chain, limit int) ([]model.DepositRecord, error) {
	return l.store.DepositRecord.ListRetryable(l.db.WithContext(ctx),
		[]model.DepositStatus{model.DepositStatusPending, model.DepositStatusConfirmed}, chains, limit)
}

func (l *Ledger) RetryableWithdrawals(ctx context.Context, payoutChains []model.Chain, limit int) ([]model.WithdrawalRecord, error) {
	return l.store.WithdrawalRecord.ListRetryable(l.db.WithContext(ctx),
		[]model.WithdrawalStatus{model.WithdrawalStatusPending}, payoutChains, limit)
}

// MarkDepositAttempted moves rec to the back of the retry queue.
func (l *Ledger) MarkDepositAttempted(ctx context.Context, rec *model.DepositRecord) error {
	now := l.now()
	if err := l.store.DepositRecord.MarkAttempted(l.db.WithContext(ctx), rec.ID, now); err != nil {
		return err
	}
	rec.LastAttemptAt = &now
	return nil
}

func (l *Ledger) MarkWithdrawalAttempted(ctx context.Context, rec *model.WithdrawalRecord) error {
	now := l.now()
	if err := l.store.WithdrawalRecord.MarkAttempted(l.db.WithContext(ctx), rec.ID, now); err != nil {
		return err
	}
	rec.LastAttemptAt = &now
	return nil
}

func (l *Ledger) Deposit(ctx context.Context, chain model.Chain, sourceTxID string) (*model.DepositRecord, error) {
	return l.store.DepositRecord.GetBySource(l.db.WithContext(ctx), chain, sourceTxID)
}

func (l *Ledger) Withdrawal(ctx context.Context, signature string) (*model.WithdrawalRecord, error) {
	return l.store.WithdrawalRecord.GetBySignature(l.db.WithContext(ctx), signature)
}

// ListDeposits pages through deposits newest first with the total match count.
func (l *Ledger) ListDeposits(ctx context.Context, filter depositrecord.ListFilter) ([]model.DepositRecord, int64, error) {
	return l.store.DepositRecord.Find(l.db.WithContext(ctx), filter)
}

func (l *Ledger) ListWithdrawals(ctx context.Context, filter withdrawalrecord.ListFilter) ([]model.WithdrawalRecord, int64, error) {
	return l.store.WithdrawalRecord.Find(l.db.WithContext(ctx), filter)
}

func (l *Ledger) DepositsByTxID(ctx context.Context, sourceTxID string) ([]model.DepositRecord, error) {
	return l.store.DepositRecord.FindBySourceTxID(l.db.WithContext(ctx), sourceTxID)
}

func (l *Ledger) History(ctx context.Context, kind model.RecordKind, key string) ([]model.StatusTransition, error) {
	return l.store.StatusTransition.ListByRecord(l.db.WithContext(ctx), kind, key)
}
