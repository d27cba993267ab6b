package models

import (
	"context"
	"time"

	"github.com/precifix/costing_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecalcTask is the durable "recalculation pending" marker. It is
// written in the same transaction as the cost change it follows, so a
// confirmed change can never silently miss its cascade: either the
// synchronous recalculation after confirm clears it, or the background
// processor picks it up and retries.
type RecalcTask struct {
	ID            int          `gorm:"primary_key" json:"id"`
	RawMaterialId int          `gorm:"index" json:"raw_material_id"`
	LaborTypeId   int          `gorm:"index" json:"labor_type_id"`
	Status        RecalcStatus `gorm:"size:20;not null;default:'Pending';index" json:"status"`
	Attempts      int          `gorm:"not null;default:0" json:"attempts"`
	LastError     *string      `gorm:"type:text" json:"last_error"`
	LockedAt      *time.Time   `json:"locked_at"`
	LockedBy      *string      `gorm:"size:100" json:"locked_by"`
	ProcessedAt   *time.Time   `json:"processed_at"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// EnqueueRecalcTask stages a pending task for one material inside the
// caller's transaction. An unclaimed pending task for the material is
// enough; the recalculation recomputes from ground truth, so one marker
// covers any number of cost changes. A claimed task does not count: its
// worker may have read the cost before this change committed, so a
// fresh row is staged behind it.
func EnqueueRecalcTask(tx *gorm.DB, materialId int) error {
	var count int64
	err := tx.Model(&RecalcTask{}).
		Where("raw_material_id = ? AND status = ? AND locked_at IS NULL", materialId, RecalcStatusPending).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&RecalcTask{
		RawMaterialId: materialId,
		Status:        RecalcStatusPending,
	}).Error
}

// EnqueueRecalcTaskForLabor stages a pending task keyed by labor type,
// used when an hourly or machine rate changes.
func EnqueueRecalcTaskForLabor(ctx context.Context, laborTypeId int) error {
	db := config.GetDB()
	tx := db.WithContext(ctx)
	var count int64
	err := tx.Model(&RecalcTask{}).
		Where("labor_type_id = ? AND status = ? AND locked_at IS NULL", laborTypeId, RecalcStatusPending).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&RecalcTask{
		LaborTypeId: laborTypeId,
		Status:      RecalcStatusPending,
	}).Error
}

// ClaimPendingRecalcTasks marks up to batchSize pending tasks as locked
// by workerId and returns them. Stale locks (older than lockTTL) are
// taken over, so a crashed worker cannot strand a task.
func ClaimPendingRecalcTasks(ctx context.Context, workerId string, batchSize int, lockTTL time.Duration) ([]RecalcTask, error) {
	db := config.GetDB()
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTTL)

	var claimed []RecalcTask
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("status = ?", RecalcStatusPending).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(batchSize)
		// Row locks need MySQL; the single-writer test database skips them.
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &workerId
			if err := tx.Model(&RecalcTask{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkRecalcTasksDone finalizes successfully processed tasks.
func MarkRecalcTasksDone(ctx context.Context, taskIds []int) error {
	if len(taskIds) == 0 {
		return nil
	}
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&RecalcTask{}).
		Where("id IN ?", taskIds).
		Updates(map[string]interface{}{
			"status":       RecalcStatusDone,
			"processed_at": &now,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   nil,
		}).Error
}

// MarkRecalcTasksDoneForMaterials finalizes unclaimed pending tasks
// after a successful synchronous cascade, which knows the material ids
// it covered but not the task ids. Claimed tasks belong to their worker
// and are finalized by id once that pass completes.
func MarkRecalcTasksDoneForMaterials(ctx context.Context, materialIds []int) error {
	if len(materialIds) == 0 {
		return nil
	}
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&RecalcTask{}).
		Where("raw_material_id IN ? AND status = ? AND locked_at IS NULL", materialIds, RecalcStatusPending).
		Updates(map[string]interface{}{
			"status":       RecalcStatusDone,
			"processed_at": &now,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   nil,
		}).Error
}

// ReleaseRecalcTasks records the failure and frees the tasks for retry.
func ReleaseRecalcTasks(ctx context.Context, taskIds []int, processErr error) error {
	if len(taskIds) == 0 {
		return nil
	}
	db := config.GetDB()
	errMsg := processErr.Error()
	return db.WithContext(ctx).Model(&RecalcTask{}).
		Where("id IN ?", taskIds).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": &errMsg,
			"locked_at":  nil,
			"locked_by":  nil,
		}).Error
}

// CountPendingRecalcTasks backs the "recalculation pending" indicator.
func CountPendingRecalcTasks(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&RecalcTask{}).
		Where("status = ?", RecalcStatusPending).
		Count(&count).Error
	return count, err
}
