package statustransition

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type IStore interface {
	Create(tx *gorm.DB, t *model.StatusTransition) error
	ListByRecord(tx *gorm.DB, kind model.RecordKind, key string) ([]model.StatusTransition, error)
}
