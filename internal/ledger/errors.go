package ledger

import "errors"

var (
	ErrRecordNotFound     = errors.New("ledger: record not found")
	ErrInvalidTransition  = errors.New("ledger: invalid status transition")
	ErrInvariantViolation = errors.New("ledger: invariant violation")
	ErrInvalidAmount      = errors.New("ledger: invalid amount")
)
