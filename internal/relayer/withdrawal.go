package relayer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/archive"
	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
)

// SubmitWithdrawalClaim verifies a Solana burn or custody transfer and pays
// the requested amount out on the payout chain. Reserve is earmarked in the
// same transaction that moves the claim into Processing.
func (r *Relayer) SubmitWithdrawalClaim(ctx context.Context, req WithdrawalRequest) (Result, error) {
	req.Signature = strings.TrimSpace(req.Signature)
	req.PayoutAddress = strings.TrimSpace(req.PayoutAddress)
	if req.Signature == "" || req.PayoutAddress == "" {
		return Result{}, fmt.Errorf("%w: signature and payout address are required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if r.withdrawals == nil || !r.settler.SupportsPayout(req.PayoutChain) {
		return Result{}, fmt.Errorf("%w: payouts on %q", ErrUnsupportedChain, req.PayoutChain)
	}

	if r.Paused() {
		return r.finish(Result{
			Kind:    model.RecordKindWithdrawal,
			Key:     req.Signature,
			Outcome: OutcomePaused,
		}), nil
	}

	return r.processWithdrawal(ctx, &model.WithdrawalRecord{
		SourceTxSignature: req.Signature,
		Sender:            strings.TrimSpace(req.Sender),
		RequestedAmount:   req.Amount,
		PayoutChain:       req.PayoutChain,
		PayoutAddress:     req.PayoutAddress,
		AddressEncrypted:  req.Encrypted,
	})
}

func (r *Relayer) processWithdrawal(ctx context.Context, seed *model.WithdrawalRecord) (Result, error) {
	key := seed.SourceTxSignature

	var (
		snap model.WithdrawalRecord
		done *Result
	)
	err := r.ledger.LockOrCreateWithdrawal(ctx, seed, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		if res, ok := withdrawalShortCircuit(rec); ok {
			done = &res
			return nil
		}
		snap = *rec
		return nil
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindWithdrawal, key, err)
	}
	if done != nil {
		return r.finish(*done), nil
	}

	vctx, cancel := r.verifyContext(ctx)
	vres, verr := r.withdrawals.Verify(vctx, chain.Expectation{
		TxID:        snap.SourceTxSignature,
		Amount:      snap.RequestedAmount,
		Destination: snap.PayoutAddress,
		Sender:      snap.Sender,
		Asset:       snap.PayoutChain,
	})
	cancel()
	if verr != nil || !vres.Confirmed {
		return r.withdrawalUnverified(ctx, &snap, vres, verr)
	}

	err = r.ledger.LockWithdrawal(ctx, key, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		if res, ok := withdrawalShortCircuit(rec); ok {
			done = &res
			return nil
		}
		rec.Confirmations = vres.Confirmations

		reserved, err := r.ledger.ReserveFunds(tx, rec, rec.RequestedAmount)
		if err != nil {
			return err
		}
		if !reserved {
			res := withdrawalResult(rec, OutcomeInsufficientReserve)
			done = &res
			return nil
		}
		if err := r.ledger.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusProcessing); err != nil {
			return err
		}
		snap = *rec
		return nil
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindWithdrawal, key, err)
	}
	if done != nil {
		if done.Outcome == OutcomeInsufficientReserve {
			r.logger.Warn("[Relayer.processWithdrawal] insufficient reserve", map[string]string{
				"key":    key,
				"asset":  string(seed.PayoutChain),
				"amount": strconv.FormatInt(seed.RequestedAmount, 10),
			})
		}
		return r.finish(*done), nil
	}

	address, derr := r.payoutAddress(ctx, &snap)
	if derr != nil {
		return r.finalizeWithdrawal(ctx, &snap, "", derr)
	}

	r.logger.Info("[Relayer.processWithdrawal] paying out", map[string]string{
		"key":     key,
		"chain":   string(snap.PayoutChain),
		"amount":  strconv.FormatInt(snap.RequestedAmount, 10),
		"attempt": strconv.Itoa(snap.SettlementAttempts),
	})
	txID, serr := r.settler.ExecutePayout(ctx, snap.PayoutChain, snap.SettlementKey(), address, snap.RequestedAmount)
	return r.finalizeWithdrawal(ctx, &snap, txID, serr)
}

// payoutAddress decrypts the stored address only when it is about to be used.
func (r *Relayer) payoutAddress(ctx context.Context, rec *model.WithdrawalRecord) (string, error) {
	if !rec.AddressEncrypted {
		return rec.PayoutAddress, nil
	}
	return r.cipher.Decrypt(ctx, rec.PayoutAddress)
}

func (r *Relayer) withdrawalUnverified(ctx context.Context, snap *model.WithdrawalRecord, vres chain.VerificationResult, verr error) (Result, error) {
	key := snap.SourceTxSignature

	var res Result
	err := r.ledger.LockWithdrawal(ctx, key, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		if short, ok := withdrawalShortCircuit(rec); ok {
			res = short
			return nil
		}

		rec.VerifyAttempts++
		if verr == nil {
			rec.Confirmations = vres.Confirmations
			res = withdrawalResult(rec, OutcomeAwaitingConfirmation)
			return r.ledger.SaveWithdrawal(tx, rec)
		}

		switch classify(verr) {
		case classPermanent:
			if err := r.ledger.FailWithdrawal(tx, rec, failureReason(verr), verr); err != nil {
				return err
			}
			res = withdrawalResult(rec, OutcomeRejected)
			return nil
		case classNotFound:
			if r.cfg.NotFoundTimeout > 0 && r.now().Sub(rec.CreatedAt) > r.cfg.NotFoundTimeout {
				if err := r.ledger.FailWithdrawal(tx, rec, model.FailureReasonNotFoundTimeout, verr); err != nil {
					return err
				}
				res = withdrawalResult(rec, OutcomeRejected)
				return nil
			}
			rec.LastError = verr.Error()
			res = withdrawalResult(rec, OutcomeAwaitingConfirmation)
		default:
			rec.LastError = verr.Error()
			res = withdrawalResult(rec, OutcomeDeferred)
		}
		return r.ledger.SaveWithdrawal(tx, rec)
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindWithdrawal, key, err)
	}

	fields := map[string]string{"key": key, "outcome": string(res.Outcome), "status": res.Status}
	if verr != nil {
		fields["error"] = verr.Error()
	}
	if res.Outcome == OutcomeRejected {
		r.logger.Error("[Relayer.withdrawalUnverified] verification failed", fields)
	} else {
		r.logger.Info("[Relayer.withdrawalUnverified] not settled yet", fields)
	}
	return r.finish(res), nil
}

func (r *Relayer) finalizeWithdrawal(ctx context.Context, snap *model.WithdrawalRecord, txID string, serr error) (Result, error) {
	key := snap.SourceTxSignature

	if serr != nil && classify(serr) != classPermanent && snap.SettlementAttempts >= r.cfg.MaxSettlementAttempts {
		if found, ok, err := r.settler.FindPayout(ctx, snap.PayoutChain, snap.SettlementKey()); err == nil && ok {
			txID, serr = found, nil
		}
	}
	r.observer.ObserveSettlement(model.RecordKindWithdrawal, settlementResult(serr))

	var res Result
	err := r.ledger.LockWithdrawal(ctx, key, func(tx *gorm.DB, rec *model.WithdrawalRecord) error {
		if serr == nil {
			return r.completeWithdrawal(tx, rec, txID, &res)
		}
		if rec.Status != model.WithdrawalStatusProcessing {
			res, _ = withdrawalShortCircuit(rec)
			if res.Outcome == "" {
				res = withdrawalResult(rec, OutcomeDeferred)
			}
			return nil
		}

		reason := model.FailureReasonRetriesExhausted
		switch {
		case classify(serr) == classPermanent:
			reason = failureReason(serr)
		case rec.SettlementAttempts < r.cfg.MaxSettlementAttempts:
			// keep the reservation; the sweep resets the row if nothing lands
			rec.LastError = serr.Error()
			res = withdrawalResult(rec, OutcomeDeferred)
			return r.ledger.SaveWithdrawal(tx, rec)
		}

		if err := r.ledger.ReleaseFunds(tx, rec); err != nil {
			return err
		}
		if err := r.ledger.FailWithdrawal(tx, rec, reason, serr); err != nil {
			return err
		}
		res = withdrawalResult(rec, OutcomeRejected)
		return nil
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindWithdrawal, key, err)
	}

	switch res.Outcome {
	case OutcomeSettled:
		r.logger.Info("[Relayer.finalizeWithdrawal] confirmed", map[string]string{"key": key, "txid": res.SettlementTxID})
		r.archive(ctx, archive.Receipt{
			Kind:           model.RecordKindWithdrawal,
			Key:            key,
			SourceChain:    model.ChainSOL,
			SourceTxID:     key,
			TargetChain:    snap.PayoutChain,
			SettlementTxID: res.SettlementTxID,
			Amount:         snap.RequestedAmount,
			Status:         res.Status,
		})
	case OutcomeRejected:
		r.logger.Error("[Relayer.finalizeWithdrawal] payout failed", map[string]string{
			"key":    key,
			"reason": string(res.Reason),
			"error":  serr.Error(),
		})
	default:
		fields := map[string]string{"key": key, "outcome": string(res.Outcome)}
		if serr != nil {
			fields["error"] = serr.Error()
		}
		r.logger.Warn("[Relayer.finalizeWithdrawal] not finalized", fields)
	}
	return r.finish(res), nil
}

// completeWithdrawal turns the reservation into a completed outflow. When a
// sweep already released the reservation the funds are earmarked again first.
func (r *Relayer) completeWithdrawal(tx *gorm.DB, rec *model.WithdrawalRecord, txID string, res *Result) error {
	switch rec.Status {
	case model.WithdrawalStatusConfirmed:
		*res = withdrawalResult(rec, OutcomeAlreadyProcessed)
		return nil
	case model.WithdrawalStatusPending:
		reserved, err := r.ledger.ReserveFunds(tx, rec, rec.RequestedAmount)
		if err != nil {
			return err
		}
		if !reserved {
			return fmt.Errorf("%w: payout %s landed without reserve to cover it", ledger.ErrInvariantViolation, txID)
		}
	case model.WithdrawalStatusProcessing:
	default:
		return fmt.Errorf("%w: payout %s landed for withdrawal in status %s", ledger.ErrInvariantViolation, txID, rec.Status)
	}

	rec.PayoutTxID = &txID
	if err := r.ledger.SettleWithdrawal(tx, rec); err != nil {
		return err
	}
	if err := r.ledger.AdvanceWithdrawal(tx, rec, model.WithdrawalStatusConfirmed); err != nil {
		return err
	}
	*res = withdrawalResult(rec, OutcomeSettled)
	return nil
}

func withdrawalShortCircuit(rec *model.WithdrawalRecord) (Result, bool) {
	switch rec.Status {
	case model.WithdrawalStatusConfirmed:
		return withdrawalResult(rec, OutcomeAlreadyProcessed), true
	case model.WithdrawalStatusProcessing:
		return withdrawalResult(rec, OutcomeInProgress), true
	case model.WithdrawalStatusFailed:
		return withdrawalResult(rec, OutcomeRejected), true
	}
	return Result{}, false
}

func withdrawalResult(rec *model.WithdrawalRecord, outcome Outcome) Result {
	res := Result{
		Kind:    model.RecordKindWithdrawal,
		Key:     rec.SourceTxSignature,
		Status:  string(rec.Status),
		Outcome: outcome,
		Reason:  rec.FailureReason,
	}
	if rec.PayoutTxID != nil {
		res.SettlementTxID = *rec.PayoutTxID
	}
	return res
}
