// Package chain defines what the relayer needs from a blockchain: reading a
// transaction back to check it matches what was claimed, and broadcasting an
// idempotent transfer keyed by a ledger key.
package chain

import (
	"context"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

// Expectation is what a caller claims happened on chain. Empty fields are not checked.
type Expectation struct {
	TxID        string
	Amount      int64
	Destination string
	Sender      string
	// Asset is the chain a withdrawal pays out on.
	Asset model.Chain
}

type VerificationResult struct {
	Confirmed         bool
	Confirmations     int
	ActualAmount      int64
	ActualDestination string
	ActualSender      string
	ActualAsset       model.Chain
}

type Verifier interface {
	Chain() model.Chain
	// Verify never reports Confirmed for a response it cannot fully parse.
	Verify(ctx context.Context, exp Expectation) (VerificationResult, error)
}

type Transfer struct {
	// Key is the ledger key the transfer settles; broadcasters embed it so a
	// later FindExisting can recognise the transfer.
	Key     string
	Address string
	Amount  int64
}

type Broadcaster interface {
	Chain() model.Chain
	FindExisting(ctx context.Context, key string) (txID string, found bool, err error)
	Broadcast(ctx context.Context, t Transfer) (string, error)
}

// CheckExpectation compares a confirmed result with the claim.
func CheckExpectation(exp Expectation, res VerificationResult) error {
	if exp.Amount != res.ActualAmount {
		return Mismatch(ErrAmountMismatch, exp.Amount, res.ActualAmount)
	}
	if exp.Destination != "" && exp.Destination != res.ActualDestination {
		return Mismatch(ErrDestinationMismatch, exp.Destination, res.ActualDestination)
	}
	if exp.Asset != "" && exp.Asset != res.ActualAsset {
		return Mismatch(ErrDestinationMismatch, exp.Asset, res.ActualAsset)
	}
	if exp.Sender != "" && exp.Sender != res.ActualSender {
		return Mismatch(ErrSenderMismatch, exp.Sender, res.ActualSender)
	}
	return nil
}
