package model

import "time"

// ReserveLedger is the per-asset reserve counter set. Available funds are
// bootstrap + deposited - withdrawn - reserved and must never go negative.
type ReserveLedger struct {
	Asset           Chain     `gorm:"column:asset;type:varchar(8);primaryKey"`
	BootstrapAmount int64     `gorm:"column:bootstrap_amount;not null;default:0"`
	DepositedAmount int64     `gorm:"column:deposited_amount;not null;default:0"`
	WithdrawnAmount int64     `gorm:"column:withdrawn_amount;not null;default:0"`
	ReservedAmount  int64     `gorm:"column:reserved_amount;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (ReserveLedger) TableName() string {
	return "reserve_ledgers"
}

func (r *ReserveLedger) Available() int64 {
	return r.BootstrapAmount + r.DepositedAmount - r.WithdrawnAmount - r.ReservedAmount
}

// Settled is the reserve ignoring in-flight reservations.
func (r *ReserveLedger) Settled() int64 {
	return r.BootstrapAmount + r.DepositedAmount - r.WithdrawnAmount
}

func (r *ReserveLedger) Consistent() bool {
	return r.BootstrapAmount >= 0 && r.DepositedAmount >= 0 && r.WithdrawnAmount >= 0 &&
		r.ReservedAmount >= 0 && r.Available() >= 0
}
