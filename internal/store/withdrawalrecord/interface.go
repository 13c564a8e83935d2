package withdrawalrecord

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type IStore interface {
	CreateIfAbsent(tx *gorm.DB, rec *model.WithdrawalRecord) (bool, error)
	GetForUpdate(tx *gorm.DB, signature string) (*model.WithdrawalRecord, error)
	GetBySignature(tx *gorm.DB, signature string) (*model.WithdrawalRecord, error)
	Save(tx *gorm.DB, rec *model.WithdrawalRecord) error
	ListRetryable(tx *gorm.DB, statuses []model.WithdrawalStatus, payoutChains []model.Chain, limit int) ([]model.WithdrawalRecord, error)
	MarkAttempted(tx *gorm.DB, id uint, at time.Time) error
	ListStuck(tx *gorm.DB, before time.Time, limit int) ([]model.WithdrawalRecord, error)
	Find(tx *gorm.DB, filter ListFilter) ([]model.WithdrawalRecord, int64, error)
}

type ListFilter struct {
	PayoutChain model.Chain
	Status      model.WithdrawalStatus
	Limit       int
	Offset      int
}
