package depositrecord

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type IStore interface {
	// CreateIfAbsent inserts rec unless a row with the same source already exists.
	CreateIfAbsent(tx *gorm.DB, rec *model.DepositRecord) (bool, error)
	GetForUpdate(tx *gorm.DB, chain model.Chain, sourceTxID string) (*model.DepositRecord, error)
	GetBySource(tx *gorm.DB, chain model.Chain, sourceTxID string) (*model.DepositRecord, error)
	FindBySourceTxID(tx *gorm.DB, sourceTxID string) ([]model.DepositRecord, error)
	Save(tx *gorm.DB, rec *model.DepositRecord) error
	// ListRetryable returns records in statuses from chains, those never
	// retried first, then the least recently retried.
	ListRetryable(tx *gorm.DB, statuses []model.DepositStatus, chains []model.Chain, limit int) ([]model.DepositRecord, error)
	MarkAttempted(tx *gorm.DB, id uint, at time.Time) error
	ListStuck(tx *gorm.DB, before time.Time, limit int) ([]model.DepositRecord, error)
	Find(tx *gorm.DB, filter ListFilter) ([]model.DepositRecord, int64, error)
}

type ListFilter struct {
	Chain  model.Chain
	Status model.DepositStatus
	Limit  int
	Offset int
}
