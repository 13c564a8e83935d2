package reserveledger

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) GetForUpdate(tx *gorm.DB, asset model.Chain) (*model.ReserveLedger, error) {
	seed := &model.ReserveLedger{Asset: asset}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, err
	}

	var r model.ReserveLedger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("asset = ?", asset).First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *store) Get(tx *gorm.DB, asset model.Chain) (*model.ReserveLedger, error) {
	var r model.ReserveLedger
	if err := tx.Where("asset = ?", asset).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *store) List(tx *gorm.DB) ([]model.ReserveLedger, error) {
	var rs []model.ReserveLedger
	err := tx.Order("asset ASC").Find(&rs).Error
	return rs, err
}

func (s *store) Save(tx *gorm.DB, r *model.ReserveLedger) error {
	return tx.Save(r).Error
}
