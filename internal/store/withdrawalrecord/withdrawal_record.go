package withdrawalrecord

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

func (s *store) CreateIfAbsent(tx *gorm.DB, rec *model.WithdrawalRecord) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) GetForUpdate(tx *gorm.DB, signature string) (*model.WithdrawalRecord, error) {
	var rec model.WithdrawalRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("source_tx_signature = ?", signature).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) GetBySignature(tx *gorm.DB, signature string) (*model.WithdrawalRecord, error) {
	var rec model.WithdrawalRecord
	if err := tx.Where("source_tx_signature = ?", signature).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) Save(tx *gorm.DB, rec *model.WithdrawalRecord) error {
	return tx.Save(rec).Error
}

func (s *store) ListRetryable(tx *gorm.DB, statuses []model.WithdrawalStatus, payoutChains []model.Chain, limit int) ([]model.WithdrawalRecord, error) {
	var recs []model.WithdrawalRecord
	if len(payoutChains) == 0 {
		return recs, nil
	}
	err := tx.Where("status IN ? AND payout_chain IN ?", statuses, payoutChains).
		Order("last_attempt_at IS NOT NULL, last_attempt_at ASC, id ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *store) MarkAttempted(tx *gorm.DB, id uint, at time.Time) error {
	return tx.Model(&model.WithdrawalRecord{}).Where("id = ?", id).UpdateColumn("last_attempt_at", at).Error
}

func (s *store) ListStuck(tx *gorm.DB, before time.Time, limit int) ([]model.WithdrawalRecord, error) {
	var recs []model.WithdrawalRecord
	err := tx.Where("status = ? AND processing_started_at < ?", model.WithdrawalStatusProcessing, before).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *store) Find(tx *gorm.DB, filter ListFilter) ([]model.WithdrawalRecord, int64, error) {
	var (
		recs  []model.WithdrawalRecord
		total int64
	)

	query := tx.Model(&model.WithdrawalRecord{})
	if filter.PayoutChain != "" {
		query = query.Where("payout_chain = ?", filter.PayoutChain)
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
