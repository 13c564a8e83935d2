package model

// FailureReason explains why a record reached Failed.
type FailureReason string

const (
	FailureReasonNone                FailureReason = ""
	FailureReasonAmountMismatch      FailureReason = "amount_mismatch"
	FailureReasonDestinationMismatch FailureReason = "destination_mismatch"
	FailureReasonSenderMismatch      FailureReason = "sender_mismatch"
	FailureReasonInvalidAddress      FailureReason = "invalid_address"
	FailureReasonInvalidTransaction  FailureReason = "invalid_transaction"
	FailureReasonValidationFailed    FailureReason = "validation_failed"
	FailureReasonAmountExceedsMax    FailureReason = "amount_exceeds_max"
	FailureReasonNotFoundTimeout     FailureReason = "not_found_timeout"
	FailureReasonSettlementRejected  FailureReason = "settlement_rejected"
	FailureReasonRetriesExhausted    FailureReason = "retries_exhausted"
	FailureReasonInvariantViolation  FailureReason = "invariant_violation"
)

// IsValidation reports whether the reason came from validating the source event
// rather than from running out of settlement retries.
func (r FailureReason) IsValidation() bool {
	switch r {
	case FailureReasonAmountMismatch, FailureReasonDestinationMismatch, FailureReasonSenderMismatch,
		FailureReasonInvalidAddress, FailureReasonInvalidTransaction, FailureReasonValidationFailed,
		FailureReasonAmountExceedsMax:
		return true
	}
	return false
}
