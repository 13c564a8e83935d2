package model

import (
	"time"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusConfirmed  WithdrawalStatus = "confirmed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

var withdrawalStatusRank = map[WithdrawalStatus]int{
	WithdrawalStatusPending:    0,
	WithdrawalStatusProcessing: 1,
	WithdrawalStatusConfirmed:  2,
}

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusConfirmed || s == WithdrawalStatusFailed
}

func (s WithdrawalStatus) Valid() bool {
	_, ok := withdrawalStatusRank[s]
	return ok || s == WithdrawalStatusFailed
}

func (s WithdrawalStatus) CanAdvanceTo(next WithdrawalStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == WithdrawalStatusFailed {
		return true
	}
	from, ok := withdrawalStatusRank[s]
	to, ok2 := withdrawalStatusRank[next]
	return ok && ok2 && to > from
}

type WithdrawalRecord struct {
	ID                  uint             `gorm:"primaryKey"`
	SourceTxSignature   string           `gorm:"column:source_tx_signature;type:varchar(128);not null;uniqueIndex"`
	Sender              string           `gorm:"column:sender;type:varchar(64)"`
	RequestedAmount     int64            `gorm:"column:requested_amount;not null"`
	PayoutChain         Chain            `gorm:"column:payout_chain;type:varchar(8);not null"`
	// PayoutAddress holds ciphertext when AddressEncrypted is set.
	PayoutAddress       string           `gorm:"column:payout_address;type:text;not null"`
	AddressEncrypted    bool             `gorm:"column:address_encrypted;not null;default:false"`
	Status              WithdrawalStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	PayoutTxID          *string          `gorm:"column:payout_tx_id;type:varchar(128)"`
	ReservedAmount      int64            `gorm:"column:reserved_amount;not null;default:0"`
	FailureReason       FailureReason    `gorm:"column:failure_reason;type:varchar(40)"`
	LastError           string           `gorm:"column:last_error;type:text"`
	Confirmations       int              `gorm:"column:confirmations;not null;default:0"`
	VerifyAttempts      int              `gorm:"column:verify_attempts;not null;default:0"`
	SettlementAttempts  int              `gorm:"column:settlement_attempts;not null;default:0"`
	ProcessingStartedAt *time.Time       `gorm:"column:processing_started_at"`
	LastAttemptAt       *time.Time       `gorm:"column:last_attempt_at"`
	CreatedAt           time.Time        `gorm:"column:created_at"`
	UpdatedAt           time.Time        `gorm:"column:updated_at"`
}

func (WithdrawalRecord) TableName() string {
	return "withdrawal_records"
}

func (w *WithdrawalRecord) SettlementKey() string {
	return "withdrawal:" + w.SourceTxSignature
}
