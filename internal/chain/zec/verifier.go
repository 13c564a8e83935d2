package zec

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/chain/btc"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// Verifier checks transparent ZEC deposits into the treasury. Like BTC, the
// bridge destination travels in an OP_RETURN output.
type Verifier struct {
	client           Client
	treasury         string
	minConfirmations int
	logger           *logger.Logger
}

func NewVerifier(client Client, treasury string, minConfirmations int, logger *logger.Logger) *Verifier {
	return &Verifier{
		client:           client,
		treasury:         treasury,
		minConfirmations: minConfirmations,
		logger:           logger,
	}
}

func (v *Verifier) Chain() model.Chain {
	return model.ChainZEC
}

func (v *Verifier) Verify(ctx context.Context, exp chain.Expectation) (chain.VerificationResult, error) {
	var res chain.VerificationResult

	if raw, err := hex.DecodeString(exp.TxID); err != nil || len(raw) != 32 {
		return res, fmt.Errorf("%w: bad txid %q", chain.ErrInvalidTransaction, exp.TxID)
	}

	tx, err := v.client.GetRawTransaction(ctx, exp.TxID)
	if err != nil {
		return res, err
	}

	amount, memo, ok := ParseDeposit(tx, v.treasury)
	res.ActualAmount = amount
	res.ActualDestination = memo
	if tx.Confirmations > 0 {
		res.Confirmations = int(tx.Confirmations)
	}

	// an output we could not read leaves the deposit unconfirmed
	if !ok {
		v.logger.Warn("[Verify] unreadable zcash output", map[string]string{"txid": exp.TxID})
		return res, nil
	}

	res.Confirmed = res.Confirmations > 0 && res.Confirmations >= v.minConfirmations
	if res.Confirmed {
		if err := chain.CheckExpectation(exp, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ParseDeposit sums the zatoshis paid to treasury and reads the memo.
// ok is false when any treasury output has an unreadable value.
func ParseDeposit(tx *RawTransaction, treasury string) (amount int64, memo string, ok bool) {
	ok = true
	for _, out := range tx.Vout {
		if out.ScriptPubKey.Type == "nulldata" {
			if text, found := btc.MemoText(out.ScriptPubKey.Hex); found && memo == "" {
				memo = text
			}
			continue
		}
		if !paysTo(out, treasury) {
			continue
		}
		zats, valid := out.Zats()
		if !valid {
			ok = false
			continue
		}
		amount += zats
	}
	return amount, memo, ok
}

func paysTo(out Vout, address string) bool {
	for _, a := range out.ScriptPubKey.Addresses {
		if a == address {
			return true
		}
	}
	return false
}
