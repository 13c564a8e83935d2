package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

// DoInTx runs fn inside a transaction, committing on success and rolling back on error or panic.
func DoInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// Models lists every table owned by the ledger, in creation order.
func Models() []interface{} {
	return []interface{}{
		&model.DepositRecord{},
		&model.WithdrawalRecord{},
		&model.ReserveLedger{},
		&model.StatusTransition{},
	}
}
