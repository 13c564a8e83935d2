package reserveledger

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type IStore interface {
	// GetForUpdate locks the asset row, creating an empty one first if needed.
	GetForUpdate(tx *gorm.DB, asset model.Chain) (*model.ReserveLedger, error)
	Get(tx *gorm.DB, asset model.Chain) (*model.ReserveLedger, error)
	List(tx *gorm.DB) ([]model.ReserveLedger, error)
	Save(tx *gorm.DB, r *model.ReserveLedger) error
}
