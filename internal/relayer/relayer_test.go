package relayer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/archive"
	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/settlement"
	"github.com/dwarvesf/zenz-bridge/internal/store"
	"github.com/dwarvesf/zenz-bridge/internal/store/storetest"
	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	btcPayoutAddr = "tb1qpayout0000000000000000000000000000000"
	solSender     = "SoLSender1111111111111111111111111111111111"
)

var depositRank = map[string]int{"pending": 0, "confirmed": 1, "processing": 2, "processed": 3}

var _ = Describe("Relayer", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		l         *ledger.Ledger
		clock     *fakeClock
		btcV      *fakeVerifier
		zecV      *fakeVerifier
		solW      *fakeVerifier
		minter    *fakeBroadcaster
		btcPayout *fakeBroadcaster
		alerter   *fakeAlerter
		receipts  *archive.Archiver
		cfg       relayer.Config
		r         *relayer.Relayer
	)

	build := func() {
		log := logger.New(environments.Test)
		exec := settlement.New(minter, []chain.Broadcaster{btcPayout}, settlement.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			CallTimeout: time.Second,
		}, log).WithSleep(func(context.Context, time.Duration) error { return nil })

		r = relayer.New(relayer.Deps{
			Ledger:             l,
			DepositVerifiers:   []chain.Verifier{btcV, zecV},
			WithdrawalVerifier: solW,
			Settler:            exec,
			Cipher:             prefixCipher{},
			Archiver:           receipts,
			Alerter:            alerter,
		}, cfg, log).WithClock(clock.Now)
	}

	reserve := func(asset model.Chain) *model.ReserveLedger {
		res, err := l.Reserve(ctx, asset)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	history := func(kind model.RecordKind, key string) []string {
		ts, err := l.History(ctx, kind, key)
		Expect(err).NotTo(HaveOccurred())
		out := make([]string, 0, len(ts))
		for _, t := range ts {
			out = append(out, t.ToStatus)
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		var closeDB func() error
		var err error
		db, closeDB, err = storetest.Open()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closeDB)

		clock = &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
		l = ledger.New(db, store.New(), logger.New(environments.Test)).WithClock(clock.Now)
		btcV = newFakeVerifier(model.ChainBTC)
		zecV = newFakeVerifier(model.ChainZEC)
		solW = newFakeVerifier(model.ChainSOL)
		minter = newFakeBroadcaster(model.ChainSOL)
		btcPayout = newFakeBroadcaster(model.ChainBTC)
		alerter = &fakeAlerter{}
		receipts = archive.NewArchiver(archive.NewMemory(""))
		cfg = relayer.Config{
			MaxSettlementAttempts: 3,
			VerifyTimeout:         time.Second,
			NotFoundTimeout:       6 * time.Hour,
			ProcessingTimeout:     30 * time.Minute,
			SweepBatchSize:        50,
		}
		build()
	})

	Describe("SubmitDeposit", func() {
		It("settles a confirmed BTC deposit and credits the reserve", func() {
			btcV.confirm("btc_abc", 100000, "addr_X")

			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_abc", Amount: 100000, DestinationAddress: "addr_X",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeSettled))
			Expect(res.Status).To(Equal("processed"))
			Expect(res.SettlementTxID).NotTo(BeEmpty())
			Expect(history(model.RecordKindDeposit, "BTC:btc_abc")).To(Equal([]string{"pending", "confirmed", "processing", "processed"}))
			Expect(reserve(model.ChainBTC).DepositedAmount).To(Equal(int64(100000)))
			Expect(reserve(model.ChainBTC).Available()).To(Equal(int64(100000)))

			Expect(minter.sentCount()).To(Equal(1))
			sent := minter.lastSent()
			Expect(sent.Address).To(Equal("addr_X"))
			Expect(sent.Amount).To(Equal(int64(100000)))
			Expect(sent.Key).To(Equal("deposit:BTC:btc_abc"))

			rc, err := receipts.Receipt(ctx, model.RecordKindDeposit, "BTC:btc_abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(rc.SettlementTxID).To(Equal(res.SettlementTxID))
		})

		It("settles exactly once under concurrent submissions", func() {
			btcV.confirm("btc_dup", 5000, "addr_Y")

			const n = 8
			results := make([]relayer.Result, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
						Chain: model.ChainBTC, SourceTxID: "btc_dup", Amount: 5000, DestinationAddress: "addr_Y",
					})
					Expect(err).NotTo(HaveOccurred())
					results[i] = res
				}()
			}
			wg.Wait()

			settled := 0
			for _, res := range results {
				if res.Outcome == relayer.OutcomeSettled {
					settled++
				} else {
					Expect(res.Outcome.IsDuplicate()).To(BeTrue(), "unexpected outcome %s", res.Outcome)
				}
			}
			Expect(settled).To(Equal(1))
			Expect(minter.sentCount()).To(Equal(1))
			Expect(reserve(model.ChainBTC).DepositedAmount).To(Equal(int64(5000)))

			again, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_dup", Amount: 5000, DestinationAddress: "addr_Y",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Outcome).To(Equal(relayer.OutcomeAlreadyProcessed))
		})

		It("waits while the source transaction is unconfirmed", func() {
			btcV.set("btc_slow", chain.VerificationResult{Confirmations: 2, ActualAmount: 700, ActualDestination: "addr_X"}, nil)

			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_slow", Amount: 700, DestinationAddress: "addr_X",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeAwaitingConfirmation))
			Expect(res.Status).To(Equal("pending"))
			rec, err := l.Deposit(ctx, model.ChainBTC, "btc_slow")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Confirmations).To(Equal(2))
			Expect(minter.sentCount()).To(BeZero())
		})

		It("leaves the record untouched on a transient verifier error", func() {
			btcV.set("btc_flaky", chain.VerificationResult{}, chain.Unavailable(errors.New("explorer 503")))

			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_flaky", Amount: 700, DestinationAddress: "addr_X",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeDeferred))
			Expect(res.Status).To(Equal("pending"))
		})

		It("fails permanently on an amount mismatch without minting", func() {
			btcV.confirm("btc_short", 90000, "addr_X")

			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_short", Amount: 100000, DestinationAddress: "addr_X",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeRejected))
			Expect(res.Reason).To(Equal(model.FailureReasonAmountMismatch))
			Expect(minter.sentCount()).To(BeZero())

			// terminal: a later submission changes nothing
			btcV.confirm("btc_short", 100000, "addr_X")
			again, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_short", Amount: 100000, DestinationAddress: "addr_X",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Outcome).To(Equal(relayer.OutcomeRejected))
			Expect(btcV.callCount("btc_short")).To(Equal(1))
		})

		It("gives up on a transaction that never appears", func() {
			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainZEC, SourceTxID: "zec_ghost", Amount: 1, DestinationAddress: "addr_X",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeAwaitingConfirmation))

			r.WithClock(func() time.Time { return time.Now().Add(7 * time.Hour) })
			res, err = r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainZEC, SourceTxID: "zec_ghost", Amount: 1, DestinationAddress: "addr_X",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeRejected))
			Expect(res.Reason).To(Equal(model.FailureReasonNotFoundTimeout))
		})

		It("rejects deposits above the per-transaction mint cap", func() {
			cfg.MaxMintPerTx = 1000
			build()
			btcV.confirm("btc_big", 5000, "addr_X")

			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_big", Amount: 5000, DestinationAddress: "addr_X",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(model.FailureReasonAmountExceedsMax))
			Expect(btcV.callCount("btc_big")).To(BeZero())
		})

		Context("when the mint fails", func() {
			It("fails the record with no destination tx on a permanent error", func() {
				btcV.confirm("btc_badaddr", 100, "addr_bad")
				minter.failNext(chain.ErrInvalidAddress)

				res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
					Chain: model.ChainBTC, SourceTxID: "btc_badaddr", Amount: 100, DestinationAddress: "addr_bad",
				})

				Expect(err).NotTo(HaveOccurred())
				Expect(res.Outcome).To(Equal(relayer.OutcomeRejected))
				Expect(res.Reason).To(Equal(model.FailureReasonInvalidAddress))
				rec, err := l.Deposit(ctx, model.ChainBTC, "btc_badaddr")
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.DestinationTxID).To(BeNil())
				Expect(reserve(model.ChainBTC).DepositedAmount).To(BeZero())
			})

			It("stays Processing after transient failures until attempts run out", func() {
				down := chain.Unavailable(errors.New("rpc down"))
				btcV.confirm("btc_down", 100, "addr_X")
				minter.failNext(down, down, down)

				res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
					Chain: model.ChainBTC, SourceTxID: "btc_down", Amount: 100, DestinationAddress: "addr_X",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Outcome).To(Equal(relayer.OutcomeDeferred))
				Expect(res.Status).To(Equal("processing"))
			})

			It("retries an unrecognised error like a transient one", func() {
				btcV.confirm("btc_odd", 100, "addr_X")
				minter.failNext(errors.New("unexpected rpc response"))

				res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
					Chain: model.ChainBTC, SourceTxID: "btc_odd", Amount: 100, DestinationAddress: "addr_X",
				})

				Expect(err).NotTo(HaveOccurred())
				Expect(res.Outcome).To(Equal(relayer.OutcomeSettled))
				Expect(minter.sentCount()).To(Equal(1))
			})

			It("fails with retries_exhausted once the last attempt is spent", func() {
				cfg.MaxSettlementAttempts = 1
				build()
				down := chain.Unavailable(errors.New("rpc down"))
				btcV.confirm("btc_dead", 100, "addr_X")
				minter.failNext(down, down, down)

				res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
					Chain: model.ChainBTC, SourceTxID: "btc_dead", Amount: 100, DestinationAddress: "addr_X",
				})

				Expect(err).NotTo(HaveOccurred())
				Expect(res.Outcome).To(Equal(relayer.OutcomeRejected))
				Expect(res.Reason).To(Equal(model.FailureReasonRetriesExhausted))
				Expect(res.SettlementTxID).To(BeEmpty())
				Expect(reserve(model.ChainBTC).DepositedAmount).To(BeZero())
			})
		})

		It("validates requests", func() {
			_, err := r.SubmitDeposit(ctx, relayer.DepositRequest{Chain: model.ChainBTC, SourceTxID: "x", Amount: 0, DestinationAddress: "a"})
			Expect(err).To(MatchError(relayer.ErrInvalidRequest))

			_, err = r.SubmitDeposit(ctx, relayer.DepositRequest{Chain: model.ChainSOL, SourceTxID: "x", Amount: 1, DestinationAddress: "a"})
			Expect(err).To(MatchError(relayer.ErrUnsupportedChain))
		})

		It("does nothing while paused", func() {
			r.SetPaused(true)
			btcV.confirm("btc_paused", 100, "addr_X")

			res, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_paused", Amount: 100, DestinationAddress: "addr_X",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomePaused))
			_, err = r.GetRecordStatus(ctx, "BTC:btc_paused")
			Expect(err).To(MatchError(relayer.ErrNotFound))
		})
	})

	Describe("SubmitWithdrawalClaim", func() {
		claim := func(sig string, amount int64) relayer.WithdrawalRequest {
			return relayer.WithdrawalRequest{
				Signature:     sig,
				Amount:        amount,
				PayoutChain:   model.ChainBTC,
				PayoutAddress: btcPayoutAddr,
				Sender:        solSender,
			}
		}

		BeforeEach(func() {
			_, err := l.Bootstrap(ctx, model.ChainBTC, 50000)
			Expect(err).NotTo(HaveOccurred())
		})

		It("pays out exactly once for two simultaneous claims on sol_sig_1", func() {
			solW.confirmWithdrawal("sol_sig_1", 50000, model.ChainBTC, btcPayoutAddr, solSender)

			results := make([]relayer.Result, 2)
			var wg sync.WaitGroup
			for i := range results {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := r.SubmitWithdrawalClaim(ctx, claim("sol_sig_1", 50000))
					Expect(err).NotTo(HaveOccurred())
					results[i] = res
				}()
			}
			wg.Wait()

			outcomes := []relayer.Outcome{results[0].Outcome, results[1].Outcome}
			Expect(outcomes).To(ContainElement(relayer.OutcomeSettled))
			for _, o := range outcomes {
				if o != relayer.OutcomeSettled {
					Expect(o.IsDuplicate()).To(BeTrue())
				}
			}
			Expect(btcPayout.sentCount()).To(Equal(1))

			rsv := reserve(model.ChainBTC)
			Expect(rsv.WithdrawnAmount).To(Equal(int64(50000)))
			Expect(rsv.ReservedAmount).To(BeZero())
			Expect(rsv.Available()).To(BeZero())
			Expect(history(model.RecordKindWithdrawal, "sol_sig_1")).To(Equal([]string{"pending", "processing", "confirmed"}))
		})

		It("keeps a claim Pending when the reserve cannot cover it", func() {
			solW.confirmWithdrawal("sol_sig_big", 70000, model.ChainBTC, btcPayoutAddr, solSender)

			res, err := r.SubmitWithdrawalClaim(ctx, claim("sol_sig_big", 70000))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeInsufficientReserve))
			Expect(res.Status).To(Equal("pending"))
			Expect(btcPayout.sentCount()).To(BeZero())
			rsv := reserve(model.ChainBTC)
			Expect(rsv.Available()).To(Equal(int64(50000)))
			Expect(rsv.ReservedAmount).To(BeZero())
		})

		It("never overdraws the reserve across competing claims", func() {
			var wg sync.WaitGroup
			results := make([]relayer.Result, 4)
			for i := range results {
				sig := fmt.Sprintf("sol_sig_race_%d", i)
				solW.confirmWithdrawal(sig, 20000, model.ChainBTC, btcPayoutAddr, solSender)
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := r.SubmitWithdrawalClaim(ctx, claim(sig, 20000))
					Expect(err).NotTo(HaveOccurred())
					results[i] = res
				}()
			}
			wg.Wait()

			counts := map[relayer.Outcome]int{}
			for _, res := range results {
				counts[res.Outcome]++
			}
			Expect(counts[relayer.OutcomeSettled]).To(Equal(2))
			Expect(counts[relayer.OutcomeInsufficientReserve]).To(Equal(2))

			rsv := reserve(model.ChainBTC)
			Expect(rsv.Available()).To(Equal(int64(10000)))
			Expect(rsv.Available()).To(Equal(rsv.BootstrapAmount + rsv.DepositedAmount - rsv.WithdrawnAmount))
		})

		It("releases the reservation when the payout is rejected", func() {
			solW.confirmWithdrawal("sol_sig_rej", 30000, model.ChainBTC, btcPayoutAddr, solSender)
			btcPayout.failNext(chain.ErrInsufficientFunds)

			res, err := r.SubmitWithdrawalClaim(ctx, claim("sol_sig_rej", 30000))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeRejected))
			Expect(res.Reason).To(Equal(model.FailureReasonSettlementRejected))
			rsv := reserve(model.ChainBTC)
			Expect(rsv.ReservedAmount).To(BeZero())
			Expect(rsv.Available()).To(Equal(int64(50000)))
		})

		It("rejects a claim that redirects the payout", func() {
			solW.confirmWithdrawal("sol_sig_spoof", 1000, model.ChainBTC, btcPayoutAddr, solSender)
			req := claim("sol_sig_spoof", 1000)
			req.PayoutAddress = "tb1qattacker"

			res, err := r.SubmitWithdrawalClaim(ctx, req)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(model.FailureReasonDestinationMismatch))
			Expect(btcPayout.sentCount()).To(BeZero())
		})

		It("decrypts an encrypted payout address only for the payout", func() {
			solW.confirmWithdrawal("sol_sig_enc", 1000, model.ChainBTC, "enc:"+btcPayoutAddr, solSender)
			req := claim("sol_sig_enc", 1000)
			req.PayoutAddress = "enc:" + btcPayoutAddr
			req.Encrypted = true

			res, err := r.SubmitWithdrawalClaim(ctx, req)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeSettled))
			Expect(btcPayout.lastSent().Address).To(Equal(btcPayoutAddr))
			rec, err := l.Withdrawal(ctx, "sol_sig_enc")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.PayoutAddress).To(Equal("enc:" + btcPayoutAddr))
		})

		It("alerts and halts when the reserve is found inconsistent", func() {
			solW.confirmWithdrawal("sol_sig_bad", 1000, model.ChainBTC, btcPayoutAddr, solSender)
			btcPayout.onBroadcast = func(chain.Transfer) {
				defer GinkgoRecover()
				Expect(db.Model(&model.ReserveLedger{}).Where("asset = ?", model.ChainBTC).
					Update("reserved_amount", 0).Error).To(Succeed())
			}

			_, err := r.SubmitWithdrawalClaim(ctx, claim("sol_sig_bad", 1000))

			Expect(err).To(MatchError(ledger.ErrInvariantViolation))
			Expect(alerter.count()).To(Equal(1))
			rec, err := l.Withdrawal(ctx, "sol_sig_bad")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.WithdrawalStatusProcessing))
		})

		It("refuses payout chains without a broadcaster", func() {
			req := claim("sol_sig_zec", 10)
			req.PayoutChain = model.ChainZEC
			_, err := r.SubmitWithdrawalClaim(ctx, req)
			Expect(err).To(MatchError(relayer.ErrUnsupportedChain))
		})
	})

	Describe("RecoverStuck", func() {
		stick := func(txID string, amount int64) {
			err := l.LockOrCreateDeposit(ctx, &model.DepositRecord{
				SourceChain: model.ChainBTC, SourceTxID: txID, DestinationAddress: "addr_X", Amount: amount,
			}, func(tx *gorm.DB, rec *model.DepositRecord) error {
				if err := l.AdvanceDeposit(tx, rec, model.DepositStatusConfirmed); err != nil {
					return err
				}
				return l.AdvanceDeposit(tx, rec, model.DepositStatusProcessing)
			})
			Expect(err).NotTo(HaveOccurred())
		}

		It("finalizes a stuck deposit whose mint landed", func() {
			stick("btc_crash", 400)
			landed := minter.land("deposit:BTC:btc_crash")
			clock.Advance(31 * time.Minute)

			report, err := r.RecoverStuck(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Finalized).To(Equal(1))
			rec, err := l.Deposit(ctx, model.ChainBTC, "btc_crash")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.DepositStatusProcessed))
			Expect(*rec.DestinationTxID).To(Equal(landed))
			Expect(reserve(model.ChainBTC).DepositedAmount).To(Equal(int64(400)))
		})

		It("resets a stuck deposit with no mint and settles it on retry", func() {
			stick("btc_lost", 400)
			btcV.confirm("btc_lost", 400, "addr_X")
			clock.Advance(31 * time.Minute)

			report, err := r.RecoverStuck(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Reset).To(Equal(1))
			rec, err := l.Deposit(ctx, model.ChainBTC, "btc_lost")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.DepositStatusConfirmed))

			settled, err := r.RetryPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(settled).To(Equal(1))
			Expect(minter.sentCount()).To(Equal(1))
		})

		It("leaves records inside the timeout alone", func() {
			stick("btc_fresh", 400)
			clock.Advance(5 * time.Minute)

			report, err := r.RecoverStuck(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report).To(Equal(relayer.RecoveryReport{}))
		})

		It("releases a stuck withdrawal's reservation before resetting it", func() {
			_, err := l.Bootstrap(ctx, model.ChainBTC, 10000)
			Expect(err).NotTo(HaveOccurred())
			err = l.LockOrCreateWithdrawal(ctx, &model.WithdrawalRecord{
				SourceTxSignature: "sol_sig_stuck", RequestedAmount: 6000, PayoutChain: model.ChainBTC,
				PayoutAddress: btcPayoutAddr, Sender: solSender,
			}, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
				ok, err := l.ReserveFunds(tx, rec, rec.RequestedAmount)
				if err != nil || !ok {
					return fmt.Errorf("reserve: %v %v", ok, err)
				}
				return l.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusProcessing)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reserve(model.ChainBTC).Available()).To(Equal(int64(4000)))
			clock.Advance(time.Hour)

			report, err := r.RecoverStuck(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Reset).To(Equal(1))
			Expect(reserve(model.ChainBTC).Available()).To(Equal(int64(10000)))
			Expect(history(model.RecordKindWithdrawal, "sol_sig_stuck")).To(Equal([]string{"pending", "processing", "pending"}))
		})
	})

	Describe("RetryPending", func() {
		BeforeEach(func() {
			cfg.SweepBatchSize = 1
			build()
		})

		It("reaches newer claims while an old one waits for reserve", func() {
			_, err := l.Bootstrap(ctx, model.ChainBTC, 50000)
			Expect(err).NotTo(HaveOccurred())
			solW.confirmWithdrawal("sol_sig_big", 70000, model.ChainBTC, btcPayoutAddr, solSender)
			big := relayer.WithdrawalRequest{
				Signature: "sol_sig_big", Amount: 70000, PayoutChain: model.ChainBTC,
				PayoutAddress: btcPayoutAddr, Sender: solSender,
			}
			res, err := r.SubmitWithdrawalClaim(ctx, big)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeInsufficientReserve))

			small := big
			small.Signature, small.Amount = "sol_sig_small", 20000
			res, err = r.SubmitWithdrawalClaim(ctx, small)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(relayer.OutcomeAwaitingConfirmation))
			solW.confirmWithdrawal("sol_sig_small", 20000, model.ChainBTC, btcPayoutAddr, solSender)

			settled, err := r.RetryPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(settled).To(BeZero())
			clock.Advance(time.Minute)
			settled, err = r.RetryPending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(settled).To(Equal(1))

			rec, err := l.Withdrawal(ctx, "sol_sig_small")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.WithdrawalStatusConfirmed))
			rec, err = l.Withdrawal(ctx, "sol_sig_big")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.WithdrawalStatusPending))
			Expect(rec.LastAttemptAt).NotTo(BeNil())
			Expect(reserve(model.ChainBTC).Available()).To(Equal(int64(30000)))
		})

		It("skips deposits from chains it cannot verify without holding up the batch", func() {
			err := l.LockOrCreateDeposit(ctx, &model.DepositRecord{
				SourceChain: model.ChainSOL, SourceTxID: "sol_orphan", DestinationAddress: "addr_X", Amount: 10,
			}, func(*gorm.DB, *model.DepositRecord) error { return nil })
			Expect(err).NotTo(HaveOccurred())
			_, err = r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_late", DestinationAddress: "addr_X", Amount: 400,
			})
			Expect(err).NotTo(HaveOccurred())
			btcV.confirm("btc_late", 400, "addr_X")

			settled, err := r.RetryPending(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(settled).To(Equal(1))
			rec, err := l.Deposit(ctx, model.ChainSOL, "sol_orphan")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.DepositStatusPending))
			Expect(rec.LastAttemptAt).To(BeNil())
		})
	})

	Describe("status history", func() {
		It("only ever moves forward apart from failures and sweep resets", func() {
			btcV.confirm("btc_a", 10, "addr_X")
			btcV.confirm("btc_b", 99, "addr_X")
			minter.failNext(chain.ErrRejected)
			_, err := r.SubmitDeposit(ctx, relayer.DepositRequest{Chain: model.ChainBTC, SourceTxID: "btc_a", Amount: 10, DestinationAddress: "addr_X"})
			Expect(err).NotTo(HaveOccurred())
			_, err = r.SubmitDeposit(ctx, relayer.DepositRequest{Chain: model.ChainBTC, SourceTxID: "btc_b", Amount: 99, DestinationAddress: "addr_X"})
			Expect(err).NotTo(HaveOccurred())

			for _, key := range []string{"BTC:btc_a", "BTC:btc_b"} {
				ts, err := l.History(ctx, model.RecordKindDeposit, key)
				Expect(err).NotTo(HaveOccurred())
				for _, t := range ts {
					if t.Kind == model.TransitionKindAdvance {
						Expect(depositRank[t.ToStatus]).To(BeNumerically(">", depositRank[t.FromStatus]))
					}
				}
				last := ts[len(ts)-1]
				Expect([]string{"processed", "failed"}).To(ContainElement(last.ToStatus))
			}
		})
	})

	Describe("GetRecordStatus", func() {
		BeforeEach(func() {
			btcV.confirm("btc_abc", 100000, "addr_X")
			_, err := r.SubmitDeposit(ctx, relayer.DepositRequest{
				Chain: model.ChainBTC, SourceTxID: "btc_abc", Amount: 100000, DestinationAddress: "addr_X",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("finds deposits by key or bare txid", func() {
			byKey, err := r.GetRecordStatus(ctx, "BTC:btc_abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(byKey.Status).To(Equal("processed"))
			Expect(byKey.History).To(HaveLen(4))

			byTx, err := r.GetRecordStatus(ctx, "btc_abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(byTx.Key).To(Equal("BTC:btc_abc"))
			Expect(byTx.TargetChain).To(Equal(model.ChainSOL))
		})

		It("reports missing records", func() {
			_, err := r.GetRecordStatus(ctx, "nope")
			Expect(err).To(MatchError(relayer.ErrNotFound))
			_, err = r.GetRecordStatus(ctx, "ZEC:nope")
			Expect(err).To(MatchError(relayer.ErrNotFound))
		})
	})

	Describe("ListRecords", func() {
		BeforeEach(func() {
			btcV.confirm("btc_done", 400, "addr_X")
			for _, req := range []relayer.DepositRequest{
				{Chain: model.ChainBTC, SourceTxID: "btc_done", Amount: 400, DestinationAddress: "addr_X"},
				{Chain: model.ChainBTC, SourceTxID: "btc_wait", Amount: 300, DestinationAddress: "addr_X"},
				{Chain: model.ChainZEC, SourceTxID: "zec_wait", Amount: 200, DestinationAddress: "addr_X"},
			} {
				_, err := r.SubmitDeposit(ctx, req)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("filters deposits by chain and status", func() {
			page, err := r.ListRecords(ctx, relayer.RecordFilter{
				Kind: model.RecordKindDeposit, Chain: model.ChainBTC, Status: "pending",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(1)))
			Expect(page.Limit).To(Equal(20))
			Expect(page.Records).To(HaveLen(1))
			Expect(page.Records[0].Key).To(Equal("BTC:btc_wait"))
			Expect(page.Records[0].History).To(BeEmpty())
		})

		It("pages with the total of every match", func() {
			page, err := r.ListRecords(ctx, relayer.RecordFilter{Kind: model.RecordKindDeposit, Limit: 2, Offset: 2})

			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(3)))
			Expect(page.Records).To(HaveLen(1))
		})

		It("returns an empty page for withdrawals when none exist", func() {
			page, err := r.ListRecords(ctx, relayer.RecordFilter{Kind: model.RecordKindWithdrawal, Limit: 1000})

			Expect(err).NotTo(HaveOccurred())
			Expect(page.Records).To(BeEmpty())
			Expect(page.Limit).To(Equal(100))
		})

		It("rejects unknown kinds and statuses", func() {
			_, err := r.ListRecords(ctx, relayer.RecordFilter{Kind: "swap"})
			Expect(err).To(MatchError(relayer.ErrInvalidRequest))
			_, err = r.ListRecords(ctx, relayer.RecordFilter{Kind: model.RecordKindDeposit, Status: "minted"})
			Expect(err).To(MatchError(relayer.ErrInvalidRequest))
			_, err = r.ListRecords(ctx, relayer.RecordFilter{Kind: model.RecordKindWithdrawal, Status: "processed"})
			Expect(err).To(MatchError(relayer.ErrInvalidRequest))
		})
	})
})
