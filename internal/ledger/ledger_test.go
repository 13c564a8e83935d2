package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/store"
	"github.com/dwarvesf/zenz-bridge/internal/store/storetest"
	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

func newLedger(t *testing.T) *ledger.Ledger {
	db := storetest.NewSQLite(t)
	return ledger.New(db, store.New(), logger.New(environments.Test))
}

func seedDeposit(txID string, amount int64) *model.DepositRecord {
	return &model.DepositRecord{
		SourceChain:        model.ChainBTC,
		SourceTxID:         txID,
		DestinationAddress: "addr_X",
		Amount:             amount,
	}
}

func seedWithdrawal(sig string, amount int64) *model.WithdrawalRecord {
	return &model.WithdrawalRecord{
		SourceTxSignature: sig,
		Sender:            "sender",
		RequestedAmount:   amount,
		PayoutChain:       model.ChainBTC,
		PayoutAddress:     "bc1qpayout",
	}
}

func TestLockOrCreateDeposit_CreatesOnce(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := l.LockOrCreateDeposit(ctx, seedDeposit("btc_abc", 100000), func(tx *gorm.DB, rec *model.DepositRecord) error {
			assert.Equal(t, model.DepositStatusPending, rec.Status)
			return nil
		})
		require.NoError(t, err)
	}

	recs, err := l.DepositsByTxID(ctx, "btc_abc")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	history, err := l.History(ctx, model.RecordKindDeposit, ledger.DepositKey(model.ChainBTC, "btc_abc"))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TransitionKindCreate, history[0].Kind)
}

func TestLockOrCreateDeposit_RollsBackOnError(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := l.LockOrCreateDeposit(ctx, seedDeposit("btc_rb", 10), func(tx *gorm.DB, rec *model.DepositRecord) error {
		require.NoError(t, l.AdvanceDeposit(tx, rec, model.DepositStatusConfirmed))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = l.Deposit(ctx, model.ChainBTC, "btc_rb")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	history, err := l.History(ctx, model.RecordKindDeposit, ledger.DepositKey(model.ChainBTC, "btc_rb"))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLockDeposit_Missing(t *testing.T) {
	l := newLedger(t)

	err := l.LockDeposit(context.Background(), model.ChainZEC, "nope", func(tx *gorm.DB, rec *model.DepositRecord) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
}

func TestAdvanceDeposit_ForwardOnly(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	err := l.LockOrCreateDeposit(ctx, seedDeposit("btc_fwd", 10), func(tx *gorm.DB, rec *model.DepositRecord) error {
		require.NoError(t, l.AdvanceDeposit(tx, rec, model.DepositStatusConfirmed))
		require.NoError(t, l.AdvanceDeposit(tx, rec, model.DepositStatusProcessing))
		assert.NotNil(t, rec.ProcessingStartedAt)
		assert.Equal(t, 1, rec.SettlementAttempts)

		err := l.AdvanceDeposit(tx, rec, model.DepositStatusConfirmed)
		assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
		return nil
	})
	require.NoError(t, err)

	rec, err := l.Deposit(ctx, model.ChainBTC, "btc_fwd")
	require.NoError(t, err)
	assert.Equal(t, model.DepositStatusProcessing, rec.Status)
}

func TestFailDeposit_TerminalIsFinal(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	err := l.LockOrCreateDeposit(ctx, seedDeposit("btc_fail", 10), func(tx *gorm.DB, rec *model.DepositRecord) error {
		return l.FailDeposit(tx, rec, model.FailureReasonAmountMismatch, errors.New("got 9"))
	})
	require.NoError(t, err)

	err = l.LockDeposit(ctx, model.ChainBTC, "btc_fail", func(tx *gorm.DB, rec *model.DepositRecord) error {
		assert.Equal(t, model.FailureReasonAmountMismatch, rec.FailureReason)
		assert.Equal(t, "got 9", rec.LastError)
		return l.AdvanceDeposit(tx, rec, model.DepositStatusConfirmed)
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestResetDeposit(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	err := l.LockOrCreateDeposit(ctx, seedDeposit("btc_reset", 10), func(tx *gorm.DB, rec *model.DepositRecord) error {
		assert.ErrorIs(t, l.ResetDeposit(tx, rec), ledger.ErrInvalidTransition)
		require.NoError(t, l.AdvanceDeposit(tx, rec, model.DepositStatusProcessing))
		return l.ResetDeposit(tx, rec)
	})
	require.NoError(t, err)

	rec, err := l.Deposit(ctx, model.ChainBTC, "btc_reset")
	require.NoError(t, err)
	assert.Equal(t, model.DepositStatusConfirmed, rec.Status)
	assert.Nil(t, rec.ProcessingStartedAt)

	history, err := l.History(ctx, model.RecordKindDeposit, ledger.DepositKey(model.ChainBTC, "btc_reset"))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.TransitionKindReset, history[2].Kind)
}

func TestReserveFunds_Insufficient(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Bootstrap(ctx, model.ChainBTC, 50000)
	require.NoError(t, err)

	err = l.LockOrCreateWithdrawal(ctx, seedWithdrawal("sol_big", 70000), func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		ok, err := l.ReserveFunds(tx, rec, rec.RequestedAmount)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	r, err := l.Reserve(ctx, model.ChainBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), r.Available())
	assert.Equal(t, int64(0), r.ReservedAmount)

	w, err := l.Withdrawal(ctx, "sol_big")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPending, w.Status)
	assert.Equal(t, int64(0), w.ReservedAmount)
}

func TestReserveLifecycle(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Bootstrap(ctx, model.ChainBTC, 50000)
	require.NoError(t, err)

	err = l.LockOrCreateDeposit(ctx, seedDeposit("btc_in", 20000), func(tx *gorm.DB, rec *model.DepositRecord) error {
		return l.CreditDeposit(tx, rec)
	})
	require.NoError(t, err)

	err = l.LockOrCreateWithdrawal(ctx, seedWithdrawal("sol_a", 30000), func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		ok, err := l.ReserveFunds(tx, rec, rec.RequestedAmount)
		require.NoError(t, err)
		require.True(t, ok)
		return l.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusProcessing)
	})
	require.NoError(t, err)

	r, err := l.Reserve(ctx, model.ChainBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), r.Available())

	err = l.LockWithdrawal(ctx, "sol_a", func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		if err := l.SettleWithdrawal(tx, rec); err != nil {
			return err
		}
		return l.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusConfirmed)
	})
	require.NoError(t, err)

	r, err = l.Reserve(ctx, model.ChainBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), r.Available())
	assert.Equal(t, int64(30000), r.WithdrawnAmount)
	assert.Equal(t, int64(0), r.ReservedAmount)
	assert.Equal(t, int64(50000+20000-30000), r.Settled())
}

func TestReleaseFunds(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Bootstrap(ctx, model.ChainBTC, 1000)
	require.NoError(t, err)

	err = l.LockOrCreateWithdrawal(ctx, seedWithdrawal("sol_rel", 600), func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		ok, err := l.ReserveFunds(tx, rec, rec.RequestedAmount)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusProcessing))

		assert.ErrorIs(t, l.FailWithdrawal(tx, rec, model.FailureReasonSettlementRejected, nil), ledger.ErrInvariantViolation)

		require.NoError(t, l.ReleaseFunds(tx, rec))
		return l.FailWithdrawal(tx, rec, model.FailureReasonSettlementRejected, nil)
	})
	require.NoError(t, err)

	r, err := l.Reserve(ctx, model.ChainBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), r.Available())
}

func TestSettleWithdrawal_WithoutReservation(t *testing.T) {
	l := newLedger(t)

	err := l.LockOrCreateWithdrawal(context.Background(), seedWithdrawal("sol_bad", 5), func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		return l.SettleWithdrawal(tx, rec)
	})
	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)
}

func TestBootstrap_CannotUndercutCommitments(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Bootstrap(ctx, model.ChainZEC, 100)
	require.NoError(t, err)

	w := seedWithdrawal("sol_zec", 80)
	w.PayoutChain = model.ChainZEC
	err = l.LockOrCreateWithdrawal(ctx, w, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		_, err := l.ReserveFunds(tx, rec, rec.RequestedAmount)
		return err
	})
	require.NoError(t, err)

	_, err = l.Bootstrap(ctx, model.ChainZEC, 50)
	assert.ErrorIs(t, err, ledger.ErrInvariantViolation)

	_, err = l.Bootstrap(ctx, model.ChainZEC, -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestReserve_UnknownAssetIsEmpty(t *testing.T) {
	l := newLedger(t)

	r, err := l.Reserve(context.Background(), model.ChainSOL)
	require.NoError(t, err)
	assert.Equal(t, model.ChainSOL, r.Asset)
	assert.Equal(t, int64(0), r.Available())
}

func TestConcurrentReservations_NeverOverdraw(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Bootstrap(ctx, model.ChainBTC, 50000)
	require.NoError(t, err)

	sigs := []string{"sol_c1", "sol_c2", "sol_c3", "sol_c4"}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for _, sig := range sigs {
		wg.Add(1)
		go func(sig string) {
			defer wg.Done()
			err := l.LockOrCreateWithdrawal(ctx, seedWithdrawal(sig, 20000), func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
				ok, err := l.ReserveFunds(tx, rec, rec.RequestedAmount)
				if err != nil || !ok {
					return err
				}
				mu.Lock()
				reserved++
				mu.Unlock()
				return l.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusProcessing)
			})
			assert.NoError(t, err)
		}(sig)
	}
	wg.Wait()

	assert.Equal(t, 2, reserved)
	r, err := l.Reserve(ctx, model.ChainBTC)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), r.Available())
	assert.True(t, r.Consistent())
}

func TestStuckAndRetryable(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	require.NoError(t, l.LockOrCreateDeposit(ctx, seedDeposit("btc_p", 1), func(tx *gorm.DB, rec *model.DepositRecord) error {
		return nil
	}))
	require.NoError(t, l.LockOrCreateDeposit(ctx, seedDeposit("btc_s", 1), func(tx *gorm.DB, rec *model.DepositRecord) error {
		return l.AdvanceDeposit(tx, rec, model.DepositStatusProcessing)
	}))

	retry, err := l.RetryableDeposits(ctx, model.AllChains, 10)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, "btc_p", retry[0].SourceTxID)

	stuck, err := l.StuckDeposits(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "btc_s", stuck[0].SourceTxID)

	stuck, err = l.StuckDeposits(ctx, 1<<40, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestRetryableRotation(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	for _, id := range []string{"btc_a", "btc_b"} {
		require.NoError(t, l.LockOrCreateDeposit(ctx, seedDeposit(id, 1), func(tx *gorm.DB, rec *model.DepositRecord) error {
			return nil
		}))
	}
	zec := seedDeposit("zec_a", 1)
	zec.SourceChain = model.ChainZEC
	require.NoError(t, l.LockOrCreateDeposit(ctx, zec, func(tx *gorm.DB, rec *model.DepositRecord) error {
		return nil
	}))

	retry, err := l.RetryableDeposits(ctx, []model.Chain{model.ChainBTC}, 1)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, "btc_a", retry[0].SourceTxID)

	// an attempted record yields its slot to the one never tried
	require.NoError(t, l.MarkDepositAttempted(ctx, &retry[0]))
	require.NotNil(t, retry[0].LastAttemptAt)
	retry, err = l.RetryableDeposits(ctx, []model.Chain{model.ChainBTC}, 1)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, "btc_b", retry[0].SourceTxID)

	none, err := l.RetryableDeposits(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
