package depositrecord

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) CreateIfAbsent(tx *gorm.DB, rec *model.DepositRecord) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) GetForUpdate(tx *gorm.DB, chain model.Chain, sourceTxID string) (*model.DepositRecord, error) {
	var rec model.DepositRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("source_chain = ? AND source_tx_id = ?", chain, sourceTxID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) GetBySource(tx *gorm.DB, chain model.Chain, sourceTxID string) (*model.DepositRecord, error) {
	var rec model.DepositRecord
	err := tx.Where("source_chain = ? AND source_tx_id = ?", chain, sourceTxID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) FindBySourceTxID(tx *gorm.DB, sourceTxID string) ([]model.DepositRecord, error) {
	var recs []model.DepositRecord
	err := tx.Where("source_tx_id = ?", sourceTxID).Order("id ASC").Find(&recs).Error
	return recs, err
}

func (s *store) Save(tx *gorm.DB, rec *model.DepositRecord) error {
	return tx.Save(rec).Error
}

func (s *store) ListRetryable(tx *gorm.DB, statuses []model.DepositStatus, chains []model.Chain, limit int) ([]model.DepositRecord, error) {
	var recs []model.DepositRecord
	if len(chains) == 0 {
		return recs, nil
	}
	err := tx.Where("status IN ? AND source_chain IN ?", statuses, chains).
		Order("last_attempt_at IS NOT NULL, last_attempt_at ASC, id ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// MarkAttempted leaves updated_at alone so it keeps tracking real changes.
func (s *store) MarkAttempted(tx *gorm.DB, id uint, at time.Time) error {
	return tx.Model(&model.DepositRecord{}).Where("id = ?", id).UpdateColumn("last_attempt_at", at).Error
}

func (s *store) ListStuck(tx *gorm.DB, before time.Time, limit int) ([]model.DepositRecord, error) {
	var recs []model.DepositRecord
	err := tx.Where("status = ? AND processing_started_at < ?", model.DepositStatusProcessing, before).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *store) Find(tx *gorm.DB, filter ListFilter) ([]model.DepositRecord, int64, error) {
	var (
		recs  []model.DepositRecord
		total int64
	)

	query := tx.Model(&model.DepositRecord{})
	if filter.Chain != "" {
		query = query.Where("source_chain = ?", filter.Chain)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	err := query.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}
