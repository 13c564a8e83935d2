package btc

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/chain/btc/blockstream"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// Verifier checks BTC deposits into the treasury. The destination on the
// bridge side is carried in an OP_RETURN memo.
type Verifier struct {
	client           blockstream.IBlockStream
	treasury         string
	minConfirmations int
	logger           *logger.Logger
}

func NewVerifier(client blockstream.IBlockStream, treasury string, minConfirmations int, logger *logger.Logger) *Verifier {
	return &Verifier{
		client:           client,
		treasury:         treasury,
		minConfirmations: minConfirmations,
		logger:           logger,
	}
}

func (v *Verifier) Chain() model.Chain {
	return model.ChainBTC
}

func (v *Verifier) Verify(ctx context.Context, exp chain.Expectation) (chain.VerificationResult, error) {
	var res chain.VerificationResult

	if _, err := chainhash.NewHashFromStr(exp.TxID); err != nil || len(exp.TxID) != 2*chainhash.HashSize {
		return res, fmt.Errorf("%w: bad txid %q", chain.ErrInvalidTransaction, exp.TxID)
	}

	tx, err := v.client.GetTransaction(ctx, exp.TxID)
	if err != nil {
		return res, err
	}

	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == v.treasury {
			res.ActualAmount += out.Value
			continue
		}
		if out.ScriptPubKeyType == "op_return" && res.ActualDestination == "" {
			if memo, ok := MemoText(out.ScriptPubKey); ok {
				res.ActualDestination = memo
			}
		}
	}
	for _, in := range tx.Vin {
		if in.Prevout != nil && in.Prevout.ScriptPubKeyAddress != "" {
			res.ActualSender = in.Prevout.ScriptPubKeyAddress
			break
		}
	}

	if !tx.Status.Confirmed || tx.Status.BlockHeight <= 0 {
		return res, nil
	}

	tip, err := v.client.GetTipHeight(ctx)
	if err != nil {
		return res, err
	}
	if conf := tip - tx.Status.BlockHeight + 1; conf > 0 {
		res.Confirmations = int(conf)
	}
	res.Confirmed = res.Confirmations >= v.minConfirmations && res.Confirmations > 0

	if res.Confirmed {
		if err := chain.CheckExpectation(exp, res); err != nil {
			v.logger.Error("[Verify][CheckExpectation]", map[string]string{
				"txid":  exp.TxID,
				"error": err.Error(),
			})
			return res, err
		}
	}
	return res, nil
}
