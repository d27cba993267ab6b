package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireMaterialCostLock serializes cost writes per raw material across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that performs the cost transaction.
//
// Non-MySQL dialects (the SQLite test database) have a single writer, so
// the lock is a no-op there.
func AcquireMaterialCostLock(tx *gorm.DB, materialId int) error {
	if tx.Dialector.Name() != "mysql" {
		return nil
	}
	lockName := fmt.Sprintf("material-cost:%d", materialId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire cost lock for material_id=%d", materialId)
	}
	return nil
}

func ReleaseMaterialCostLock(tx *gorm.DB, materialId int) {
	if tx.Dialector.Name() != "mysql" {
		return
	}
	lockName := fmt.Sprintf("material-cost:%d", materialId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
