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

// SubmitDeposit verifies a source-chain deposit and mints its amount on
// Solana. It is safe to call any number of times, concurrently, for the same
// transaction: exactly one call settles it.
func (r *Relayer) SubmitDeposit(ctx context.Context, req DepositRequest) (Result, error) {
	req.SourceTxID = strings.TrimSpace(req.SourceTxID)
	req.DestinationAddress = strings.TrimSpace(req.DestinationAddress)
	if req.SourceTxID == "" || req.DestinationAddress == "" {
		return Result{}, fmt.Errorf("%w: source tx and destination address are required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !r.SupportsDeposit(req.Chain) {
		return Result{}, fmt.Errorf("%w: deposits from %q", ErrUnsupportedChain, req.Chain)
	}

	if r.Paused() {
		return r.finish(Result{
			Kind:    model.RecordKindDeposit,
			Key:     ledger.DepositKey(req.Chain, req.SourceTxID),
			Outcome: OutcomePaused,
		}), nil
	}

	return r.processDeposit(ctx, &model.DepositRecord{
		SourceChain:        req.Chain,
		SourceTxID:         req.SourceTxID,
		DestinationAddress: req.DestinationAddress,
		Amount:             req.Amount,
	})
}

func (r *Relayer) processDeposit(ctx context.Context, seed *model.DepositRecord) (Result, error) {
	key := ledger.DepositKey(seed.SourceChain, seed.SourceTxID)

	var (
		snap model.DepositRecord
		done *Result
	)
	err := r.ledger.LockOrCreateDeposit(ctx, seed, func(tx *gorm.DB, rec *model.DepositRecord) error {
		if res, ok := depositShortCircuit(rec); ok {
			done = &res
			return nil
		}
		if r.cfg.MaxMintPerTx > 0 && rec.Amount > r.cfg.MaxMintPerTx {
			cause := fmt.Errorf("amount %d exceeds max mint %d", rec.Amount, r.cfg.MaxMintPerTx)
			if err := r.ledger.FailDeposit(tx, rec, model.FailureReasonAmountExceedsMax, cause); err != nil {
				return err
			}
			res := depositResult(rec, OutcomeRejected)
			done = &res
			return nil
		}
		snap = *rec
		return nil
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindDeposit, key, err)
	}
	if done != nil {
		return r.finish(*done), nil
	}

	verifier := r.verifiers[snap.SourceChain]
	vctx, cancel := r.verifyContext(ctx)
	vres, verr := verifier.Verify(vctx, chain.Expectation{
		TxID:        snap.SourceTxID,
		Amount:      snap.Amount,
		Destination: snap.DestinationAddress,
	})
	cancel()
	if verr != nil || !vres.Confirmed {
		return r.depositUnverified(ctx, &snap, vres, verr)
	}

	err = r.ledger.LockDeposit(ctx, snap.SourceChain, snap.SourceTxID, func(tx *gorm.DB, rec *model.DepositRecord) error {
		// another caller may have claimed the row while we verified
		if res, ok := depositShortCircuit(rec); ok {
			done = &res
			return nil
		}
		rec.Confirmations = vres.Confirmations
		if rec.Status == model.DepositStatusPending {
			if err := r.ledger.AdvanceDeposit(tx, rec, model.DepositStatusConfirmed); err != nil {
				return err
			}
		}
		if err := r.ledger.AdvanceDeposit(tx, rec, model.DepositStatusProcessing); err != nil {
			return err
		}
		snap = *rec
		return nil
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindDeposit, key, err)
	}
	if done != nil {
		return r.finish(*done), nil
	}

	r.logger.Info("[Relayer.processDeposit] minting", map[string]string{
		"key":     key,
		"amount":  strconv.FormatInt(snap.Amount, 10),
		"to":      snap.DestinationAddress,
		"attempt": strconv.Itoa(snap.SettlementAttempts),
	})
	txID, serr := r.settler.ExecuteMint(ctx, snap.SettlementKey(), snap.DestinationAddress, snap.Amount)
	return r.finalizeDeposit(ctx, &snap, txID, serr)
}

func (r *Relayer) depositUnverified(ctx context.Context, snap *model.DepositRecord, vres chain.VerificationResult, verr error) (Result, error) {
	key := ledger.DepositKey(snap.SourceChain, snap.SourceTxID)

	var res Result
	err := r.ledger.LockDeposit(ctx, snap.SourceChain, snap.SourceTxID, func(tx *gorm.DB, rec *model.DepositRecord) error {
		if short, ok := depositShortCircuit(rec); ok {
			res = short
			return nil
		}

		rec.VerifyAttempts++
		if verr == nil {
			rec.Confirmations = vres.Confirmations
			res = depositResult(rec, OutcomeAwaitingConfirmation)
			return r.ledger.SaveDeposit(tx, rec)
		}

		switch classify(verr) {
		case classPermanent:
			if err := r.ledger.FailDeposit(tx, rec, failureReason(verr), verr); err != nil {
				return err
			}
			res = depositResult(rec, OutcomeRejected)
			return nil
		case classNotFound:
			if r.cfg.NotFoundTimeout > 0 && r.now().Sub(rec.CreatedAt) > r.cfg.NotFoundTimeout {
				if err := r.ledger.FailDeposit(tx, rec, model.FailureReasonNotFoundTimeout, verr); err != nil {
					return err
				}
				res = depositResult(rec, OutcomeRejected)
				return nil
			}
			rec.LastError = verr.Error()
			res = depositResult(rec, OutcomeAwaitingConfirmation)
		default:
			rec.LastError = verr.Error()
			res = depositResult(rec, OutcomeDeferred)
		}
		return r.ledger.SaveDeposit(tx, rec)
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindDeposit, key, err)
	}

	fields := map[string]string{"key": key, "outcome": string(res.Outcome), "status": res.Status}
	if verr != nil {
		fields["error"] = verr.Error()
	}
	if res.Outcome == OutcomeRejected {
		r.logger.Error("[Relayer.depositUnverified] verification failed", fields)
	} else {
		r.logger.Info("[Relayer.depositUnverified] not settled yet", fields)
	}
	return r.finish(res), nil
}

func (r *Relayer) finalizeDeposit(ctx context.Context, snap *model.DepositRecord, txID string, serr error) (Result, error) {
	key := ledger.DepositKey(snap.SourceChain, snap.SourceTxID)

	if serr != nil && classify(serr) != classPermanent && snap.SettlementAttempts >= r.cfg.MaxSettlementAttempts {
		// the last broadcast may have landed even though the call failed
		if found, ok, err := r.settler.FindMint(ctx, snap.SettlementKey()); err == nil && ok {
			txID, serr = found, nil
		}
	}
	r.observer.ObserveSettlement(model.RecordKindDeposit, settlementResult(serr))

	var res Result
	err := r.ledger.LockDeposit(ctx, snap.SourceChain, snap.SourceTxID, func(tx *gorm.DB, rec *model.DepositRecord) error {
		if serr == nil {
			return r.completeDeposit(tx, rec, txID, &res)
		}
		if rec.Status != model.DepositStatusProcessing {
			res, _ = depositShortCircuit(rec)
			if res.Outcome == "" {
				res = depositResult(rec, OutcomeDeferred)
			}
			return nil
		}

		if classify(serr) == classPermanent {
			if err := r.ledger.FailDeposit(tx, rec, failureReason(serr), serr); err != nil {
				return err
			}
			res = depositResult(rec, OutcomeRejected)
			return nil
		}
		if rec.SettlementAttempts >= r.cfg.MaxSettlementAttempts {
			if err := r.ledger.FailDeposit(tx, rec, model.FailureReasonRetriesExhausted, serr); err != nil {
				return err
			}
			res = depositResult(rec, OutcomeRejected)
			return nil
		}
		rec.LastError = serr.Error()
		res = depositResult(rec, OutcomeDeferred)
		return r.ledger.SaveDeposit(tx, rec)
	})
	if err != nil {
		return Result{}, r.invariant(ctx, model.RecordKindDeposit, key, err)
	}

	switch res.Outcome {
	case OutcomeSettled:
		r.logger.Info("[Relayer.finalizeDeposit] processed", map[string]string{"key": key, "txid": res.SettlementTxID})
		r.archive(ctx, archive.Receipt{
			Kind:           model.RecordKindDeposit,
			Key:            key,
			SourceChain:    snap.SourceChain,
			SourceTxID:     snap.SourceTxID,
			TargetChain:    model.ChainSOL,
			SettlementTxID: res.SettlementTxID,
			Amount:         snap.Amount,
			Status:         res.Status,
		})
	case OutcomeRejected:
		r.logger.Error("[Relayer.finalizeDeposit] settlement failed", map[string]string{
			"key":    key,
			"reason": string(res.Reason),
			"error":  serr.Error(),
		})
	default:
		fields := map[string]string{"key": key, "outcome": string(res.Outcome)}
		if serr != nil {
			fields["error"] = serr.Error()
		}
		r.logger.Warn("[Relayer.finalizeDeposit] not finalized", fields)
	}
	return r.finish(res), nil
}

// completeDeposit records a landed mint. A sweep may have reset the row to
// Confirmed in the meantime; the mint is still the one settling it.
func (r *Relayer) completeDeposit(tx *gorm.DB, rec *model.DepositRecord, txID string, res *Result) error {
	switch rec.Status {
	case model.DepositStatusProcessing, model.DepositStatusConfirmed:
		rec.DestinationTxID = &txID
		if err := r.ledger.CreditDeposit(tx, rec); err != nil {
			return err
		}
		if err := r.ledger.AdvanceDeposit(tx, rec, model.DepositStatusProcessed); err != nil {
			return err
		}
		*res = depositResult(rec, OutcomeSettled)
		return nil
	case model.DepositStatusProcessed:
		*res = depositResult(rec, OutcomeAlreadyProcessed)
		return nil
	default:
		return fmt.Errorf("%w: mint %s landed for deposit in status %s", ledger.ErrInvariantViolation, txID, rec.Status)
	}
}

func depositShortCircuit(rec *model.DepositRecord) (Result, bool) {
	switch rec.Status {
	case model.DepositStatusProcessed:
		return depositResult(rec, OutcomeAlreadyProcessed), true
	case model.DepositStatusProcessing:
		return depositResult(rec, OutcomeInProgress), true
	case model.DepositStatusFailed:
		return depositResult(rec, OutcomeRejected), true
	}
	return Result{}, false
}

func depositResult(rec *model.DepositRecord, outcome Outcome) Result {
	res := Result{
		Kind:    model.RecordKindDeposit,
		Key:     ledger.DepositKey(rec.SourceChain, rec.SourceTxID),
		Status:  string(rec.Status),
		Outcome: outcome,
		Reason:  rec.FailureReason,
	}
	if rec.DestinationTxID != nil {
		res.SettlementTxID = *rec.DestinationTxID
	}
	return res
}

func settlementResult(err error) string {
	if err == nil {
		return "success"
	}
	if classify(err) == classPermanent {
		return "permanent_failure"
	}
	return "transient_failure"
}
