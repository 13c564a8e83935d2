package watcher

import (
	"context"
	"strconv"

	"github.com/dwarvesf/zenz-bridge/internal/chain/btc"
	"github.com/dwarvesf/zenz-bridge/internal/chain/btc/blockstream"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	// esplora returns 25 confirmed transactions per page
	blockstreamPageSize = 25
	btcMaxPages         = 8
)

// BTCWatcher pages through the treasury address history, newest first, and
// reports incoming transfers that carry a destination memo.
type BTCWatcher struct {
	client   blockstream.IBlockStream
	treasury string
	seen     seenSet
	logger   *logger.Logger
}

func NewBTCWatcher(client blockstream.IBlockStream, treasury string, logger *logger.Logger) *BTCWatcher {
	return &BTCWatcher{
		client:   client,
		treasury: treasury,
		seen:     newSeenSet(),
		logger:   logger,
	}
}

func (w *BTCWatcher) Name() string {
	return "btc"
}

func (w *BTCWatcher) Poll(ctx context.Context) (Batch, error) {
	var (
		batch Batch
		from  string
	)

	for page := 0; page < btcMaxPages; page++ {
		txs, err := w.client.GetTransactionsByAddress(ctx, w.treasury, from)
		if err != nil {
			w.logger.Error("[BTCWatcher.Poll][GetTransactionsByAddress]", map[string]string{
				"error": err.Error(),
				"from":  from,
			})
			return Batch{}, err
		}

		fresh := 0
		for _, tx := range txs {
			if w.seen.has(tx.TxID) {
				continue
			}
			fresh++
			ev, ok := w.decode(tx)
			if !ok {
				w.seen.add(tx.TxID)
				continue
			}
			batch.Deposits = append(batch.Deposits, ev)
		}

		if fresh == 0 || len(txs) < blockstreamPageSize {
			break
		}
		from = lastConfirmed(txs)
		if from == "" {
			break
		}
	}

	if batch.Len() > 0 {
		w.logger.Info("[BTCWatcher.Poll] found deposits", map[string]string{"count": strconv.Itoa(batch.Len())})
	}
	return batch, nil
}

func (w *BTCWatcher) decode(tx blockstream.Transaction) (BTCDeposit, bool) {
	ev := BTCDeposit{TxID: tx.TxID}

	for _, in := range tx.Vin {
		if in.Prevout == nil {
			continue
		}
		// spends from the treasury are our own payouts
		if in.Prevout.ScriptPubKeyAddress == w.treasury {
			return BTCDeposit{}, false
		}
		if ev.Sender == "" {
			ev.Sender = in.Prevout.ScriptPubKeyAddress
		}
	}

	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == w.treasury {
			ev.Amount += out.Value
			continue
		}
		if out.ScriptPubKeyType == "op_return" && ev.Destination == "" {
			if memo, ok := btc.MemoText(out.ScriptPubKey); ok {
				ev.Destination = memo
			}
		}
	}

	if ev.Amount <= 0 {
		return BTCDeposit{}, false
	}
	if ev.Destination == "" {
		w.logger.Warn("[BTCWatcher.decode] deposit without destination memo", map[string]string{
			"txid":   tx.TxID,
			"amount": strconv.FormatInt(ev.Amount, 10),
		})
		return BTCDeposit{}, false
	}
	return ev, true
}

// Ack stops reporting deposits the relayer has recorded. Unconfirmed ones
// are re-verified from the ledger by the retry pass.
func (w *BTCWatcher) Ack(handled Batch) {
	for _, ev := range handled.Deposits {
		if d, ok := ev.(BTCDeposit); ok {
			w.seen.add(d.TxID)
		}
	}
}

func lastConfirmed(txs []blockstream.Transaction) string {
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Status.Confirmed {
			return txs[i].TxID
		}
	}
	return ""
}
