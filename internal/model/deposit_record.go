package model

import (
	"time"
)

type DepositStatus string

const (
	DepositStatusPending    DepositStatus = "pending"
	DepositStatusConfirmed  DepositStatus = "confirmed"
	DepositStatusProcessing DepositStatus = "processing"
	DepositStatusProcessed  DepositStatus = "processed"
	DepositStatusFailed     DepositStatus = "failed"
)

var depositStatusRank = map[DepositStatus]int{
	DepositStatusPending:    0,
	DepositStatusConfirmed:  1,
	DepositStatusProcessing: 2,
	DepositStatusProcessed:  3,
}

func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusProcessed || s == DepositStatusFailed
}

func (s DepositStatus) Valid() bool {
	_, ok := depositStatusRank[s]
	return ok || s == DepositStatusFailed
}

// CanAdvanceTo reports whether moving from s to next respects forward-only ordering.
// Failed is reachable from every non-terminal status.
func (s DepositStatus) CanAdvanceTo(next DepositStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == DepositStatusFailed {
		return true
	}
	from, ok := depositStatusRank[s]
	to, ok2 := depositStatusRank[next]
	return ok && ok2 && to > from
}

type DepositRecord struct {
	ID                  uint          `gorm:"primaryKey"`
	SourceChain         Chain         `gorm:"column:source_chain;type:varchar(8);not null;uniqueIndex:idx_deposit_records_source"`
	SourceTxID          string        `gorm:"column:source_tx_id;type:varchar(128);not null;uniqueIndex:idx_deposit_records_source"`
	DestinationAddress  string        `gorm:"column:destination_address;type:varchar(255);not null"`
	Amount              int64         `gorm:"column:amount;not null"`
	Status              DepositStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	DestinationTxID     *string       `gorm:"column:destination_tx_id;type:varchar(128)"`
	FailureReason       FailureReason `gorm:"column:failure_reason;type:varchar(40)"`
	LastError           string        `gorm:"column:last_error;type:text"`
	Confirmations       int           `gorm:"column:confirmations;not null;default:0"`
	VerifyAttempts      int           `gorm:"column:verify_attempts;not null;default:0"`
	SettlementAttempts  int           `gorm:"column:settlement_attempts;not null;default:0"`
	ProcessingStartedAt *time.Time    `gorm:"column:processing_started_at"`
	LastAttemptAt       *time.Time    `gorm:"column:last_attempt_at"`
	CreatedAt           time.Time     `gorm:"column:created_at"`
	UpdatedAt           time.Time     `gorm:"column:updated_at"`
}

func (DepositRecord) TableName() string {
	return "deposit_records"
}

// SettlementKey is the idempotency key handed to the destination chain.
func (d *DepositRecord) SettlementKey() string {
	return "deposit:" + string(d.SourceChain) + ":" + d.SourceTxID
}
