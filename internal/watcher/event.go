// Package watcher turns chain activity into typed bridge events and hands
// them to the relayer. Watchers may report the same event many times; the
// relayer decides what is new.
package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

var ErrUnknownEvent = errors.New("watcher: unknown event")

// DepositEvent is implemented only by the per-chain deposit types below.
type DepositEvent interface {
	SourceChain() model.Chain
	depositEvent()
}

type BTCDeposit struct {
	TxID        string
	Amount      int64
	Destination string
	Sender      string
}

type ZECDeposit struct {
	TxID        string
	Amount      int64
	Destination string
}

type SOLDeposit struct {
	Signature   string
	Amount      int64
	Destination string
	Sender      string
}

func (BTCDeposit) SourceChain() model.Chain { return model.ChainBTC }
func (ZECDeposit) SourceChain() model.Chain { return model.ChainZEC }
func (SOLDeposit) SourceChain() model.Chain { return model.ChainSOL }

func (BTCDeposit) depositEvent() {}
func (ZECDeposit) depositEvent() {}
func (SOLDeposit) depositEvent() {}

// WithdrawalEvent is a Solana burn or custody transfer asking for a payout.
type WithdrawalEvent struct {
	Signature     string
	Sender        string
	Amount        int64
	PayoutChain   model.Chain
	PayoutAddress string
	Encrypted     bool
}

func (w WithdrawalEvent) Request() relayer.WithdrawalRequest {
	return relayer.WithdrawalRequest{
		Signature:     w.Signature,
		Amount:        w.Amount,
		PayoutChain:   w.PayoutChain,
		PayoutAddress: w.PayoutAddress,
		Encrypted:     w.Encrypted,
		Sender:        w.Sender,
	}
}

type Batch struct {
	Deposits    []DepositEvent
	Withdrawals []WithdrawalEvent
}

func (b Batch) Len() int {
	return len(b.Deposits) + len(b.Withdrawals)
}

func (b *Batch) Merge(other Batch) {
	b.Deposits = append(b.Deposits, other.Deposits...)
	b.Withdrawals = append(b.Withdrawals, other.Withdrawals...)
}

// DepositRequestFrom maps a deposit event onto a relayer request.
func DepositRequestFrom(ev DepositEvent) (relayer.DepositRequest, error) {
	switch e := ev.(type) {
	case BTCDeposit:
		return relayer.DepositRequest{
			Chain:              model.ChainBTC,
			SourceTxID:         e.TxID,
			Amount:             e.Amount,
			DestinationAddress: e.Destination,
		}, nil
	case ZECDeposit:
		return relayer.DepositRequest{
			Chain:              model.ChainZEC,
			SourceTxID:         e.TxID,
			Amount:             e.Amount,
			DestinationAddress: e.Destination,
		}, nil
	case SOLDeposit:
		return relayer.DepositRequest{
			Chain:              model.ChainSOL,
			SourceTxID:         e.Signature,
			Amount:             e.Amount,
			DestinationAddress: e.Destination,
		}, nil
	default:
		return relayer.DepositRequest{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// Watcher polls one chain for events it has not reported recently.
type Watcher interface {
	Name() string
	Poll(ctx context.Context) (Batch, error)
}
