package watcher

import (
	"context"
	"errors"
	"strconv"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/chain/zec"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const zecListCount = 100

// ZECWatcher reads recent wallet receives on the treasury address from
// zcashd and decodes each transaction for its memo.
type ZECWatcher struct {
	client   zec.Client
	treasury string
	seen     seenSet
	logger   *logger.Logger
}

func NewZECWatcher(client zec.Client, treasury string, logger *logger.Logger) *ZECWatcher {
	return &ZECWatcher{
		client:   client,
		treasury: treasury,
		seen:     newSeenSet(),
		logger:   logger,
	}
}

func (w *ZECWatcher) Name() string {
	return "zec"
}

func (w *ZECWatcher) Poll(ctx context.Context) (Batch, error) {
	txs, err := w.client.ListTransactions(ctx, zecListCount, 0)
	if err != nil {
		w.logger.Error("[ZECWatcher.Poll][ListTransactions]", map[string]string{"error": err.Error()})
		return Batch{}, err
	}

	var batch Batch
	visited := make(map[string]bool, len(txs))
	for _, wtx := range txs {
		if wtx.Category != "receive" || wtx.Address != w.treasury {
			continue
		}
		if visited[wtx.TxID] || w.seen.has(wtx.TxID) {
			continue
		}
		visited[wtx.TxID] = true

		raw, err := w.client.GetRawTransaction(ctx, wtx.TxID)
		if errors.Is(err, chain.ErrTransactionNotFound) {
			continue
		}
		if err != nil {
			w.logger.Error("[ZECWatcher.Poll][GetRawTransaction]", map[string]string{
				"txid":  wtx.TxID,
				"error": err.Error(),
			})
			return Batch{}, err
		}

		amount, memo, ok := zec.ParseDeposit(raw, w.treasury)
		if !ok {
			w.logger.Warn("[ZECWatcher.Poll] unreadable deposit output", map[string]string{"txid": wtx.TxID})
			continue
		}
		if amount <= 0 || memo == "" {
			w.logger.Warn("[ZECWatcher.Poll] receive without destination memo", map[string]string{
				"txid":   wtx.TxID,
				"amount": strconv.FormatInt(amount, 10),
			})
			w.seen.add(wtx.TxID)
			continue
		}

		batch.Deposits = append(batch.Deposits, ZECDeposit{
			TxID:        wtx.TxID,
			Amount:      amount,
			Destination: memo,
		})
	}

	if batch.Len() > 0 {
		w.logger.Info("[ZECWatcher.Poll] found deposits", map[string]string{"count": strconv.Itoa(batch.Len())})
	}
	return batch, nil
}

func (w *ZECWatcher) Ack(handled Batch) {
	for _, ev := range handled.Deposits {
		if d, ok := ev.(ZECDeposit); ok {
			w.seen.add(d.TxID)
		}
	}
}
