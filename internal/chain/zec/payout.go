package zec

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	historyPageSize = 100
	maxHistoryPages = 5
)

// Payout pays out of the zcashd wallet. The ledger key is stored as the
// wallet comment, which is how FindExisting recognises an earlier send.
type Payout struct {
	client Client
	logger *logger.Logger
}

func NewPayout(client Client, logger *logger.Logger) *Payout {
	return &Payout{client: client, logger: logger}
}

func (p *Payout) Chain() model.Chain {
	return model.ChainZEC
}

func (p *Payout) FindExisting(ctx context.Context, key string) (string, bool, error) {
	for page := 0; page < maxHistoryPages; page++ {
		txs, err := p.client.ListTransactions(ctx, historyPageSize, page*historyPageSize)
		if err != nil {
			return "", false, err
		}
		for _, tx := range txs {
			if tx.Category == "send" && tx.Comment == key {
				return tx.TxID, true, nil
			}
		}
		if len(txs) < historyPageSize {
			break
		}
	}
	return "", false, nil
}

func (p *Payout) Broadcast(ctx context.Context, t chain.Transfer) (string, error) {
	if t.Amount <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %d", chain.ErrRejected, t.Amount)
	}
	if t.Address == "" {
		return "", fmt.Errorf("%w: empty address", chain.ErrInvalidAddress)
	}

	txID, err := p.client.SendToAddress(ctx, t.Address, t.Amount, t.Key)
	if err != nil {
		p.logger.Error("[Broadcast][SendToAddress]", map[string]string{
			"key":   t.Key,
			"error": err.Error(),
		})
		return "", err
	}

	p.logger.Info("[Broadcast] zec payout sent", map[string]string{
		"key":    t.Key,
		"txid":   txID,
		"amount": strconv.FormatInt(t.Amount, 10),
	})
	return txID, nil
}
