package chain

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

var (
	// ErrChainUnavailable covers timeouts, 5xx responses and unreachable nodes.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrTransactionNotFound is retried until the not-found window closes.
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrDestinationMismatch = errors.New("destination mismatch")
	ErrSenderMismatch      = errors.New("sender mismatch")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrRejected            = errors.New("rejected by chain")
)

func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrChainUnavailable, err)
}

func Mismatch(kind error, want, got any) error {
	return fmt.Errorf("%w: want %v, got %v", kind, want, got)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChainUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrAmountMismatch,
		ErrDestinationMismatch,
		ErrSenderMismatch,
		ErrInvalidAddress,
		ErrInvalidTransaction,
		ErrInsufficientFunds,
		ErrRejected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FailureReason maps a permanent chain error onto the code stored on a failed record.
func FailureReason(err error) model.FailureReason {
	switch {
	case errors.Is(err, ErrAmountMismatch):
		return model.FailureReasonAmountMismatch
	case errors.Is(err, ErrDestinationMismatch):
		return model.FailureReasonDestinationMismatch
	case errors.Is(err, ErrSenderMismatch):
		return model.FailureReasonSenderMismatch
	case errors.Is(err, ErrInvalidAddress):
		return model.FailureReasonInvalidAddress
	case errors.Is(err, ErrInvalidTransaction):
		return model.FailureReasonInvalidTransaction
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrRejected):
		return model.FailureReasonSettlementRejected
	default:
		return model.FailureReasonValidationFailed
	}
}
