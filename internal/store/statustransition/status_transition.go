package statustransition

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) Create(tx *gorm.DB, t *model.StatusTransition) error {
	return tx.Create(t).Error
}

func (s *store) ListByRecord(tx *gorm.DB, kind model.RecordKind, key string) ([]model.StatusTransition, error) {
	var ts []model.StatusTransition
	err := tx.Where("record_kind = ? AND record_key = ?", kind, key).Order("id ASC").Find(&ts).Error
	return ts, err
}
