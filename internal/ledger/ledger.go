package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/store"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// Ledger owns every mutation of deposit, withdrawal and reserve rows. Each
// Lock* call runs its callback inside one transaction holding the row lock;
// returning an error rolls the whole transaction back.
type Ledger struct {
	db     *gorm.DB
	store  *store.Store
	logger *logger.Logger
	now    func() time.Time
}

func New(db *gorm.DB, s *store.Store, logger *logger.Logger) *Ledger {
	return &Ledger{
		db:     db,
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for processing timestamps.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) DB() *gorm.DB {
	return l.db
}

type DepositFn func(tx *gorm.DB, rec *model.DepositRecord) error

type WithdrawalFn func(tx *gorm.DB, rec *model.WithdrawalRecord) error

// LockOrCreateDeposit locks the deposit identified by seed's source, inserting
// seed as Pending first when no row exists yet.
func (l *Ledger) LockOrCreateDeposit(ctx context.Context, seed *model.DepositRecord, fn DepositFn) error {
	return store.DoInTx(ctx, l.db, func(tx *gorm.DB) error {
		fresh := *seed
		fresh.ID = 0
		fresh.Status = model.DepositStatusPending
		created, err := l.store.DepositRecord.CreateIfAbsent(tx, &fresh)
		if err != nil {
			return fmt.Errorf("create deposit: %w", err)
		}

		rec, err := l.store.DepositRecord.GetForUpdate(tx, seed.SourceChain, seed.SourceTxID)
		if err != nil {
			return fmt.Errorf("lock deposit: %w", err)
		}

		if created {
			if err := l.record(tx, model.RecordKindDeposit, depositKey(rec), "", string(rec.Status), model.TransitionKindCreate, ""); err != nil {
				return err
			}
		}
		return fn(tx, rec)
	})
}

// LockDeposit locks an existing deposit and fails with ErrRecordNotFound when absent.
func (l *Ledger) LockDeposit(ctx context.Context, chain model.Chain, sourceTxID string, fn DepositFn) error {
	return store.DoInTx(ctx, l.db, func(tx *gorm.DB) error {
		rec, err := l.store.DepositRecord.GetForUpdate(tx, chain, sourceTxID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("lock deposit: %w", err)
		}
		return fn(tx, rec)
	})
}

func (l *Ledger) LockOrCreateWithdrawal(ctx context.Context, seed *model.WithdrawalRecord, fn WithdrawalFn) error {
	return store.DoInTx(ctx, l.db, func(tx *gorm.DB) error {
		fresh := *seed
		fresh.ID = 0
		fresh.Status = model.WithdrawalStatusPending
		created, err := l.store.WithdrawalRecord.CreateIfAbsent(tx, &fresh)
		if err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}

		rec, err := l.store.WithdrawalRecord.GetForUpdate(tx, seed.SourceTxSignature)
		if err != nil {
			return fmt.Errorf("lock withdrawal: %w", err)
		}

		if created {
			if err := l.record(tx, model.RecordKindWithdrawal, rec.SourceTxSignature, "", string(rec.Status), model.TransitionKindCreate, ""); err != nil {
				return err
			}
		}
		return fn(tx, rec)
	})
}

func (l *Ledger) LockWithdrawal(ctx context.Context, signature string, fn WithdrawalFn) error {
	return store.DoInTx(ctx, l.db, func(tx *gorm.DB) error {
		rec, err := l.store.WithdrawalRecord.GetForUpdate(tx, signature)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		return fn(tx, rec)
	})
}

// AdvanceDeposit moves rec forward and persists it. Entering Processing stamps
// the start time and counts a settlement attempt.
func (l *Ledger) AdvanceDeposit(tx *gorm.DB, rec *model.DepositRecord, to model.DepositStatus) error {
	if to == model.DepositStatusFailed {
		return fmt.Errorf("%w: use FailDeposit", ErrInvalidTransition)
	}
	if !rec.Status.CanAdvanceTo(to) {
		return fmt.Errorf("%w: deposit %s %s -> %s", ErrInvalidTransition, depositKey(rec), rec.Status, to)
	}

	from := rec.Status
	rec.Status = to
	if to == model.DepositStatusProcessing {
		now := l.now()
		rec.ProcessingStartedAt = &now
		rec.SettlementAttempts++
	}
	if to == model.DepositStatusProcessed {
		rec.ProcessingStartedAt = nil
		rec.LastError = ""
	}
	if err := l.store.DepositRecord.Save(tx, rec); err != nil {
		return fmt.Errorf("save deposit: %w", err)
	}
	return l.record(tx, model.RecordKindDeposit, depositKey(rec), string(from), string(to), model.TransitionKindAdvance, "")
}

func (l *Ledger) FailDeposit(tx *gorm.DB, rec *model.DepositRecord, reason model.FailureReason, cause error) error {
	if !rec.Status.CanAdvanceTo(model.DepositStatusFailed) {
		return fmt.Errorf("%w: deposit %s already %s", ErrInvalidTransition, depositKey(rec), rec.Status)
	}

	from := rec.Status
	rec.Status = model.DepositStatusFailed
	rec.FailureReason = reason
	rec.ProcessingStartedAt = nil
	if cause != nil {
		rec.LastError = cause.Error()
	}
	if err := l.store.DepositRecord.Save(tx, rec); err != nil {
		return fmt.Errorf("save deposit: %w", err)
	}
	return l.record(tx, model.RecordKindDeposit, depositKey(rec), string(from), string(rec.Status), model.TransitionKindFail, reason)
}

// ResetDeposit returns a stuck Processing deposit to Confirmed so it can be retried.
func (l *Ledger) ResetDeposit(tx *gorm.DB, rec *model.DepositRecord) error {
	if rec.Status != model.DepositStatusProcessing {
		return fmt.Errorf("%w: reset deposit %s from %s", ErrInvalidTransition, depositKey(rec), rec.Status)
	}

	rec.Status = model.DepositStatusConfirmed
	rec.ProcessingStartedAt = nil
	if err := l.store.DepositRecord.Save(tx, rec); err != nil {
		return fmt.Errorf("save deposit: %w", err)
	}
	return l.record(tx, model.RecordKindDeposit, depositKey(rec), string(model.DepositStatusProcessing), string(rec.Status), model.TransitionKindReset, "")
}

// SaveDeposit persists bookkeeping fields without changing status.
func (l *Ledger) SaveDeposit(tx *gorm.DB, rec *model.DepositRecord) error {
	return l.store.DepositRecord.Save(tx, rec)
}

func (l *Ledger) AdvanceWithdrawal(tx *gorm.DB, rec *model.WithdrawalRecord, to model.WithdrawalStatus) error {
	if to == model.WithdrawalStatusFailed {
		return fmt.Errorf("%w: use FailWithdrawal", ErrInvalidTransition)
	}
	if !rec.Status.CanAdvanceTo(to) {
		return fmt.Errorf("%w: withdrawal %s %s -> %s", ErrInvalidTransition, rec.SourceTxSignature, rec.Status, to)
	}

	from := rec.Status
	rec.Status = to
	switch to {
	case model.WithdrawalStatusProcessing:
		now := l.now()
		rec.ProcessingStartedAt = &now
		rec.SettlementAttempts++
	case model.WithdrawalStatusConfirmed:
		rec.ProcessingStartedAt = nil
		rec.LastError = ""
	}
	if err := l.store.WithdrawalRecord.Save(tx, rec); err != nil {
		return fmt.Errorf("save withdrawal: %w", err)
	}
	return l.record(tx, model.RecordKindWithdrawal, rec.SourceTxSignature, string(from), string(to), model.TransitionKindAdvance, "")
}

func (l *Ledger) FailWithdrawal(tx *gorm.DB, rec *model.WithdrawalRecord, reason model.FailureReason, cause error) error {
	if !rec.Status.CanAdvanceTo(model.WithdrawalStatusFailed) {
		return fmt.Errorf("%w: withdrawal %s already %s", ErrInvalidTransition, rec.SourceTxSignature, rec.Status)
	}
	if rec.ReservedAmount != 0 {
		return fmt.Errorf("%w: withdrawal %s still holds %d reserved", ErrInvariantViolation, rec.SourceTxSignature, rec.ReservedAmount)
	}

	from := rec.Status
	rec.Status = model.WithdrawalStatusFailed
	rec.FailureReason = reason
	rec.ProcessingStartedAt = nil
	if cause != nil {
		rec.LastError = cause.Error()
	}
	if err := l.store.WithdrawalRecord.Save(tx, rec); err != nil {
		return fmt.Errorf("save withdrawal: %w", err)
	}
	return l.record(tx, model.RecordKindWithdrawal, rec.SourceTxSignature, string(from), string(rec.Status), model.TransitionKindFail, reason)
}

// ResetWithdrawal returns a stuck Processing withdrawal to Pending. The caller
// must release its reservation in the same transaction first.
func (l *Ledger) ResetWithdrawal(tx *gorm.DB, rec *model.WithdrawalRecord) error {
	if rec.Status != model.WithdrawalStatusProcessing {
		return fmt.Errorf("%w: reset withdrawal %s from %s", ErrInvalidTransition, rec.SourceTxSignature, rec.Status)
	}
	if rec.ReservedAmount != 0 {
		return fmt.Errorf("%w: withdrawal %s still holds %d reserved", ErrInvariantViolation, rec.SourceTxSignature, rec.ReservedAmount)
	}

	rec.Status = model.WithdrawalStatusPending
	rec.ProcessingStartedAt = nil
	if err := l.store.WithdrawalRecord.Save(tx, rec); err != nil {
		return fmt.Errorf("save withdrawal: %w", err)
	}
	return l.record(tx, model.RecordKindWithdrawal, rec.SourceTxSignature, string(model.WithdrawalStatusProcessing), string(rec.Status), model.TransitionKindReset, "")
}

func (l *Ledger) SaveWithdrawal(tx *gorm.DB, rec *model.WithdrawalRecord) error {
	return l.store.WithdrawalRecord.Save(tx, rec)
}

func (l *Ledger) record(tx *gorm.DB, kind model.RecordKind, key, from, to string, tk model.TransitionKind, reason model.FailureReason) error {
	err := l.store.StatusTransition.Create(tx, &model.StatusTransition{
		RecordKind: kind,
		RecordKey:  key,
		FromStatus: from,
		ToStatus:   to,
		Kind:       tk,
		Reason:     reason,
	})
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// DepositKey is the key used for deposits in status history and lookups.
func DepositKey(chain model.Chain, sourceTxID string) string {
	return string(chain) + ":" + sourceTxID
}

func depositKey(rec *model.DepositRecord) string {
	return DepositKey(rec.SourceChain, rec.SourceTxID)
}
