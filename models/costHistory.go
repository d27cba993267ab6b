package models

import (
	"context"
	"errors"
	"time"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostHistory is the append-only audit trail of applied cost changes.
// Exactly one row is written, inside the same transaction, for every
// mutation of RawMaterial.UnitCost. Rows are never updated or deleted.
type CostHistory struct {
	ID                int              `gorm:"primary_key" json:"id"`
	RawMaterialId     int              `gorm:"index;not null" json:"raw_material_id"`
	SupplierInvoiceId *int             `gorm:"index" json:"supplier_invoice_id"`
	CostBefore        decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"cost_before"`
	CostAfter         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"cost_after"`
	PercentChange     decimal.Decimal  `gorm:"type:decimal(7,2);not null" json:"percent_change"`
	Reason            CostChangeReason `gorm:"size:20;not null" json:"reason"`
	UserId            int              `gorm:"index;not null" json:"user_id"`
	UserName          string           `gorm:"size:100" json:"user_name"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// CreateCostHistory appends an audit row inside the caller's transaction.
// Actor identity comes from the transaction's context; background
// workers run as user 0 / "System".
func CreateCostHistory(tx *gorm.DB, materialId int, invoiceId *int, before, after decimal.Decimal, reason CostChangeReason) error {

	ctx := tx.Statement.Context
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	history := CostHistory{
		RawMaterialId:     materialId,
		SupplierInvoiceId: invoiceId,
		CostBefore:        before,
		CostAfter:         after,
		PercentChange:     utils.PercentChange(before, after),
		Reason:            reason,
		UserId:            userId,
		UserName:          userName,
	}
	return tx.Create(&history).Error
}

// GetCostHistories lists the audit trail for one material, newest first.
func GetCostHistories(ctx context.Context, materialId int) ([]*CostHistory, error) {
	db := config.GetDB()
	var histories []*CostHistory
	err := db.WithContext(ctx).
		Where("raw_material_id = ?", materialId).
		Order("id DESC").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
