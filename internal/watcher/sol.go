package watcher

import (
	"context"
	"errors"
	"strconv"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/chain/sol"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const solSignatureLimit = 100

type depositDecoder interface {
	Decode(tx *sol.Transaction) (sol.Deposit, bool)
}

type withdrawalDecoder interface {
	Decode(tx *sol.Transaction) (*sol.Withdrawal, error)
}

// SOLWatcher lists recent signatures touching the treasury (deposits) and
// the bridge program or custody account (withdrawals).
type SOLWatcher struct {
	client            sol.Client
	deposits          depositDecoder
	withdrawals       withdrawalDecoder
	treasury          string
	withdrawalAddress string
	seenDeposits      seenSet
	seenWithdrawals   seenSet
	logger            *logger.Logger
}

// NewSOLWatcher watches treasury with deposits and withdrawalAddress with
// withdrawals. Either decoder may be nil to skip that side.
func NewSOLWatcher(client sol.Client, deposits depositDecoder, treasury string, withdrawals withdrawalDecoder, withdrawalAddress string, logger *logger.Logger) *SOLWatcher {
	return &SOLWatcher{
		client:            client,
		deposits:          deposits,
		withdrawals:       withdrawals,
		treasury:          treasury,
		withdrawalAddress: withdrawalAddress,
		seenDeposits:      newSeenSet(),
		seenWithdrawals:   newSeenSet(),
		logger:            logger,
	}
}

func (w *SOLWatcher) Name() string {
	return "sol"
}

func (w *SOLWatcher) Poll(ctx context.Context) (Batch, error) {
	var batch Batch

	if w.deposits != nil && w.treasury != "" {
		err := w.scan(ctx, w.treasury, w.seenDeposits, func(sig string, tx *sol.Transaction) bool {
			d, ok := w.deposits.Decode(tx)
			if !ok || d.Amount <= 0 {
				return false
			}
			batch.Deposits = append(batch.Deposits, SOLDeposit{
				Signature:   sig,
				Amount:      d.Amount,
				Destination: d.Destination,
				Sender:      d.Sender,
			})
			return true
		})
		if err != nil {
			return Batch{}, err
		}
	}

	if w.withdrawals != nil && w.withdrawalAddress != "" {
		err := w.scan(ctx, w.withdrawalAddress, w.seenWithdrawals, func(sig string, tx *sol.Transaction) bool {
			wd, err := w.withdrawals.Decode(tx)
			if err != nil {
				w.logger.Warn("[SOLWatcher.Poll] undecodable withdrawal", map[string]string{
					"signature": sig,
					"error":     err.Error(),
				})
				return false
			}
			if wd == nil {
				return false
			}
			batch.Withdrawals = append(batch.Withdrawals, WithdrawalEvent{
				Signature:     sig,
				Sender:        wd.Sender,
				Amount:        wd.Amount,
				PayoutChain:   wd.PayoutChain,
				PayoutAddress: wd.PayoutAddress,
				Encrypted:     wd.Encrypted,
			})
			return true
		})
		if err != nil {
			return Batch{}, err
		}
	}

	if batch.Len() > 0 {
		w.logger.Info("[SOLWatcher.Poll] found events", map[string]string{
			"deposits":    strconv.Itoa(len(batch.Deposits)),
			"withdrawals": strconv.Itoa(len(batch.Withdrawals)),
		})
	}
	return batch, nil
}

// scan fetches every new successful transaction for address. Transactions
// that yield no event are marked seen here; reported ones wait for Ack.
func (w *SOLWatcher) scan(ctx context.Context, address string, seen seenSet, handle func(sig string, tx *sol.Transaction) bool) error {
	sigs, err := w.client.GetSignaturesForAddress(ctx, address, sol.SignaturesOptions{Limit: solSignatureLimit})
	if err != nil {
		w.logger.Error("[SOLWatcher.scan][GetSignaturesForAddress]", map[string]string{
			"address": address,
			"error":   err.Error(),
		})
		return err
	}

	for _, info := range sigs {
		if seen.has(info.Signature) {
			continue
		}
		if info.Failed() {
			seen.add(info.Signature)
			continue
		}

		tx, err := w.client.GetTransaction(ctx, info.Signature)
		if errors.Is(err, chain.ErrTransactionNotFound) {
			continue
		}
		if err != nil {
			w.logger.Error("[SOLWatcher.scan][GetTransaction]", map[string]string{
				"signature": info.Signature,
				"error":     err.Error(),
			})
			return err
		}

		if !handle(info.Signature, tx) {
			seen.add(info.Signature)
		}
	}
	return nil
}

func (w *SOLWatcher) Ack(handled Batch) {
	for _, ev := range handled.Deposits {
		if d, ok := ev.(SOLDeposit); ok {
			w.seenDeposits.add(d.Signature)
		}
	}
	for _, ev := range handled.Withdrawals {
		w.seenWithdrawals.add(ev.Signature)
	}
}
