package sol

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// finalizedConfirmations is reported for finalized signatures, whose
// confirmation count the node no longer returns.
const finalizedConfirmations = 32

type WithdrawalMode string

const (
	WithdrawalModeBurn     WithdrawalMode = "burn"
	WithdrawalModeTransfer WithdrawalMode = "transfer"
)

// Withdrawal is a burn or custody transfer decoded from a bridge transaction.
type Withdrawal struct {
	Signature     string
	Sender        string
	Amount        int64
	PayoutChain   model.Chain
	PayoutAddress string
	Encrypted     bool
}

func isSignature(s string) bool {
	return len(s) >= 64 && len(s) <= 88 && len(base58.Decode(s)) == 64
}

type confirmer struct {
	client           Client
	minConfirmations int
}

func (c confirmer) status(ctx context.Context, signature string) (int, bool, error) {
	st, err := c.client.GetSignatureStatus(ctx, signature)
	if err != nil {
		return 0, false, err
	}
	if len(st.Err) > 0 && string(st.Err) != "null" {
		return 0, false, fmt.Errorf("%w: transaction %s failed on chain", chain.ErrInvalidTransaction, signature)
	}
	if st.ConfirmationStatus == CommitmentFinalized {
		return finalizedConfirmations, true, nil
	}
	confs := 0
	if st.Confirmations != nil {
		confs = *st.Confirmations
	}
	return confs, c.minConfirmations > 0 && confs >= c.minConfirmations, nil
}

func (c confirmer) fetch(ctx context.Context, signature string) (*Transaction, error) {
	if !isSignature(signature) {
		return nil, fmt.Errorf("%w: bad signature %q", chain.ErrInvalidTransaction, signature)
	}
	tx, err := c.client.GetTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	if tx.Meta.Failed() {
		return nil, fmt.Errorf("%w: transaction %s failed on chain", chain.ErrInvalidTransaction, signature)
	}
	return tx, nil
}

// DepositVerifier checks native SOL sent to the treasury. The bridge
// destination is read from an spl-memo, defaulting to the sender.
type DepositVerifier struct {
	confirmer
	treasury string
	logger   *logger.Logger
}

func NewDepositVerifier(client Client, treasury string, minConfirmations int, logger *logger.Logger) *DepositVerifier {
	return &DepositVerifier{
		confirmer: confirmer{client: client, minConfirmations: minConfirmations},
		treasury:  treasury,
		logger:    logger,
	}
}

func (v *DepositVerifier) Chain() model.Chain {
	return model.ChainSOL
}

func (v *DepositVerifier) Verify(ctx context.Context, exp chain.Expectation) (chain.VerificationResult, error) {
	var res chain.VerificationResult

	tx, err := v.fetch(ctx, exp.TxID)
	if err != nil {
		return res, err
	}

	d, ok := v.Decode(tx)
	if !ok {
		v.logger.Warn("[DepositVerifier.Verify] unreadable transfer", map[string]string{"signature": exp.TxID})
		// a settled transaction will never decode differently
		res.Confirmations, res.Confirmed, err = v.status(ctx, exp.TxID)
		if err != nil {
			return chain.VerificationResult{}, err
		}
		if res.Confirmed {
			res.Confirmed = false
			return res, fmt.Errorf("%w: no treasury transfer in %s", chain.ErrInvalidTransaction, exp.TxID)
		}
		return res, nil
	}
	res.ActualAmount = d.Amount
	res.ActualDestination = d.Destination
	res.ActualSender = d.Sender

	res.Confirmations, res.Confirmed, err = v.status(ctx, exp.TxID)
	if err != nil {
		return chain.VerificationResult{}, err
	}
	if res.Confirmed {
		if err := chain.CheckExpectation(exp, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Deposit is a treasury transfer decoded from a transaction.
type Deposit struct {
	Sender      string
	Destination string
	Amount      int64
}

// Decode reports false when the transfers cannot be read or overflow.
func (v *DepositVerifier) Decode(tx *Transaction) (Deposit, bool) {
	transfers, ok := systemTransfers(tx, v.treasury)
	if !ok {
		return Deposit{}, false
	}

	var (
		d     Deposit
		total uint64
	)
	for _, t := range transfers {
		if total > math.MaxInt64-t.Amount {
			return Deposit{}, false
		}
		total += t.Amount
		if d.Sender == "" {
			d.Sender = t.From
		}
	}
	d.Amount = int64(total)
	d.Destination = memo(tx)
	if d.Destination == "" {
		d.Destination = d.Sender
	}
	return d, true
}

// WithdrawalVerifier checks that a Solana transaction moved the bridged token
// into custody. In burn mode that is a burn event from the bridge program, in
// transfer mode an spl-token transfer into the custody account with a memo of
// the form "<chain>:<payout address>".
type WithdrawalVerifier struct {
	confirmer
	programID string
	custody   string
	mode      WithdrawalMode
	logger    *logger.Logger
}

func NewWithdrawalVerifier(client Client, mode WithdrawalMode, programID, custody string, minConfirmations int, logger *logger.Logger) *WithdrawalVerifier {
	return &WithdrawalVerifier{
		confirmer: confirmer{client: client, minConfirmations: minConfirmations},
		programID: programID,
		custody:   custody,
		mode:      mode,
		logger:    logger,
	}
}

func (v *WithdrawalVerifier) Chain() model.Chain {
	return model.ChainSOL
}

func (v *WithdrawalVerifier) Verify(ctx context.Context, exp chain.Expectation) (chain.VerificationResult, error) {
	var res chain.VerificationResult

	tx, err := v.fetch(ctx, exp.TxID)
	if err != nil {
		return res, err
	}

	w, err := v.Decode(tx)
	if err != nil {
		return res, err
	}
	if w == nil {
		return res, fmt.Errorf("%w: no bridge withdrawal in %s", chain.ErrInvalidTransaction, exp.TxID)
	}
	res.ActualAmount = w.Amount
	res.ActualSender = w.Sender
	res.ActualDestination = w.PayoutAddress
	res.ActualAsset = w.PayoutChain

	res.Confirmations, res.Confirmed, err = v.status(ctx, exp.TxID)
	if err != nil {
		return chain.VerificationResult{}, err
	}
	if res.Confirmed {
		if err := chain.CheckExpectation(exp, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Decode returns nil when tx carries no withdrawal.
func (v *WithdrawalVerifier) Decode(tx *Transaction) (*Withdrawal, error) {
	sig := ""
	if len(tx.Transaction.Signatures) > 0 {
		sig = tx.Transaction.Signatures[0]
	}

	switch v.mode {
	case WithdrawalModeTransfer:
		transfers, ok := tokenTransfers(tx, v.custody)
		if !ok {
			return nil, fmt.Errorf("%w: unreadable token transfer", chain.ErrInvalidTransaction)
		}
		if len(transfers) == 0 {
			return nil, nil
		}
		if transfers[0].Amount > math.MaxInt64 {
			return nil, fmt.Errorf("%w: amount overflows", chain.ErrInvalidTransaction)
		}
		payoutChain, address := ParsePayoutMemo(memo(tx))
		return &Withdrawal{
			Signature:     sig,
			Sender:        transfers[0].From,
			Amount:        int64(transfers[0].Amount),
			PayoutChain:   payoutChain,
			PayoutAddress: address,
		}, nil
	default:
		events, err := DecodeBurnEvents(tx.Meta.LogMessages, v.programID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", chain.ErrInvalidTransaction, err)
		}
		if len(events) == 0 {
			return nil, nil
		}
		ev := events[0]
		if ev.Amount > math.MaxInt64 {
			return nil, fmt.Errorf("%w: amount overflows", chain.ErrInvalidTransaction)
		}
		w := &Withdrawal{
			Signature:     sig,
			Sender:        ev.User,
			Amount:        int64(ev.Amount),
			PayoutAddress: ev.PayoutAddress,
			Encrypted:     ev.Encrypted,
			PayoutChain:   model.ChainSOL,
		}
		if ev.Name == EventBurnToBTC {
			w.PayoutChain = model.ChainBTC
		}
		return w, nil
	}
}

// ParsePayoutMemo splits "<chain>:<address>". Unknown or missing prefixes
// yield empty results.
func ParsePayoutMemo(m string) (model.Chain, string) {
	prefix, address, found := strings.Cut(m, ":")
	if !found {
		return "", ""
	}
	c, err := model.ParseChain(prefix)
	if err != nil {
		return "", ""
	}
	return c, strings.TrimSpace(address)
}
