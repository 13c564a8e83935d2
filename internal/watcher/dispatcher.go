package watcher

import (
	"context"
	"errors"
	"strconv"

	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// Submitter is the part of the relayer a dispatcher drives.
type Submitter interface {
	SubmitDeposit(ctx context.Context, req relayer.DepositRequest) (relayer.Result, error)
	SubmitWithdrawalClaim(ctx context.Context, req relayer.WithdrawalRequest) (relayer.Result, error)
}

type DispatchReport struct {
	Submitted int
	Settled   int
	Skipped   int
	// Paused counts events the relayer turned away without recording them.
	Paused int
	// Handled holds the events that are now in the ledger, or that the
	// relayer refused outright. Only these may be forgotten by a watcher.
	Handled Batch
}

// Acknowledger is implemented by watchers that skip already handled events
// on later polls.
type Acknowledger interface {
	Ack(handled Batch)
}

type Dispatcher struct {
	submitter Submitter
	logger    *logger.Logger
}

func NewDispatcher(submitter Submitter, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{submitter: submitter, logger: logger}
}

// Dispatch submits every event in b. Events the relayer refuses as malformed
// are skipped; any other error is returned after the rest of the batch ran.
func (d *Dispatcher) Dispatch(ctx context.Context, b Batch) (DispatchReport, error) {
	var (
		report DispatchReport
		errs   []error
	)

	for _, ev := range b.Deposits {
		req, err := DepositRequestFrom(ev)
		if err != nil {
			report.Skipped++
			d.logger.Error("[Dispatcher.Dispatch][DepositRequestFrom]", map[string]string{"error": err.Error()})
			continue
		}
		res, err := d.submitter.SubmitDeposit(ctx, req)
		if d.tally(&report, &errs, res, err, map[string]string{
			"chain": string(req.Chain),
			"txid":  req.SourceTxID,
		}) {
			report.Handled.Deposits = append(report.Handled.Deposits, ev)
		}
	}

	for _, ev := range b.Withdrawals {
		res, err := d.submitter.SubmitWithdrawalClaim(ctx, ev.Request())
		if d.tally(&report, &errs, res, err, map[string]string{
			"signature":    ev.Signature,
			"payout_chain": string(ev.PayoutChain),
		}) {
			report.Handled.Withdrawals = append(report.Handled.Withdrawals, ev)
		}
	}

	if report.Submitted > 0 || report.Skipped > 0 || report.Paused > 0 {
		d.logger.Info("[Dispatcher.Dispatch] done", map[string]string{
			"submitted": strconv.Itoa(report.Submitted),
			"settled":   strconv.Itoa(report.Settled),
			"skipped":   strconv.Itoa(report.Skipped),
			"paused":    strconv.Itoa(report.Paused),
		})
	}
	return report, errors.Join(errs...)
}

// tally reports whether the event is settled as far as the watcher is
// concerned: recorded by the relayer, or refused for good.
func (d *Dispatcher) tally(report *DispatchReport, errs *[]error, res relayer.Result, err error, fields map[string]string) bool {
	switch {
	case errors.Is(err, relayer.ErrInvalidRequest), errors.Is(err, relayer.ErrUnsupportedChain):
		report.Skipped++
		fields["error"] = err.Error()
		d.logger.Warn("[Dispatcher.Dispatch] skipped event", fields)
		return true
	case err != nil:
		*errs = append(*errs, err)
		fields["error"] = err.Error()
		d.logger.Error("[Dispatcher.Dispatch][Submit]", fields)
		return false
	case res.Outcome == relayer.OutcomePaused:
		report.Paused++
		return false
	default:
		report.Submitted++
		if res.Outcome == relayer.OutcomeSettled {
			report.Settled++
		}
		return true
	}
}

// Watch polls w once, dispatches what it found and acknowledges the events
// the relayer took, even when part of the batch failed.
func (d *Dispatcher) Watch(ctx context.Context, w Watcher) error {
	batch, err := w.Poll(ctx)
	if err != nil {
		return err
	}
	report, err := d.Dispatch(ctx, batch)
	if a, ok := w.(Acknowledger); ok && report.Handled.Len() > 0 {
		a.Ack(report.Handled)
	}
	return err
}
