package model

import "time"

type RecordKind string

const (
	RecordKindDeposit    RecordKind = "deposit"
	RecordKindWithdrawal RecordKind = "withdrawal"
)

type TransitionKind string

const (
	TransitionKindCreate  TransitionKind = "create"
	TransitionKindAdvance TransitionKind = "advance"
	TransitionKindFail    TransitionKind = "fail"
	TransitionKindReset   TransitionKind = "reset"
)

// StatusTransition is an append-only audit row written in the same transaction as the status change.
type StatusTransition struct {
	ID         uint           `gorm:"primaryKey"`
	RecordKind RecordKind     `gorm:"column:record_kind;type:varchar(16);not null;index:idx_status_transitions_record"`
	RecordKey  string         `gorm:"column:record_key;type:varchar(160);not null;index:idx_status_transitions_record"`
	FromStatus string         `gorm:"column:from_status;type:varchar(20)"`
	ToStatus   string         `gorm:"column:to_status;type:varchar(20);not null"`
	Kind       TransitionKind `gorm:"column:kind;type:varchar(16);not null"`
	Reason     FailureReason  `gorm:"column:reason;type:varchar(40)"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (StatusTransition) TableName() string {
	return "status_transitions"
}
