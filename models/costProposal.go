package models

import (
	"context"
	"time"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostProposal stages a cost change for human review. Nothing touches
// RawMaterial.UnitCost until a proposal is confirmed; a confirmed row
// is immutable and kept forever.
type CostProposal struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SupplierInvoiceId *int            `gorm:"index" json:"supplier_invoice_id"`
	RawMaterialId     int             `gorm:"index;not null" json:"raw_material_id"`
	CostBefore        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_before"`
	CostAfter         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_after"`
	PercentChange     decimal.Decimal `gorm:"type:decimal(7,2);not null" json:"percent_change"`
	IsConfirmed       *bool           `gorm:"not null;default:false" json:"is_confirmed"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`

	RawMaterial *RawMaterial `gorm:"foreignKey:RawMaterialId" json:"raw_material,omitempty"`
}

// ProposeCostChange stages a proposal inside the caller's transaction
// when newCost differs from the material's current cost; re-ingesting
// an unchanged value is a no-op and returns nil.
//
// At most one unconfirmed proposal exists per (invoice, material): a
// second differing value for the same pair refreshes the pending row
// instead of stacking a duplicate. PercentChange is computed once, at
// staging time, and stored so the review trail stays accurate even if
// the material's cost moves again later.
func ProposeCostChange(tx *gorm.DB, invoiceId *int, materialId int, newCost decimal.Decimal) (*CostProposal, error) {

	var material RawMaterial
	if err := tx.First(&material, materialId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if material.UnitCost.Equal(newCost) {
		return nil, nil
	}

	pendingScope := tx.Where("raw_material_id = ? AND is_confirmed = ?", materialId, false)
	if invoiceId == nil {
		pendingScope = pendingScope.Where("supplier_invoice_id IS NULL")
	} else {
		pendingScope = pendingScope.Where("supplier_invoice_id = ?", *invoiceId)
	}

	var existing CostProposal
	err := pendingScope.First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"CostBefore":    material.UnitCost,
			"CostAfter":     newCost,
			"PercentChange": utils.PercentChange(material.UnitCost, newCost),
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.CostBefore = material.UnitCost
		existing.CostAfter = newCost
		existing.PercentChange = utils.PercentChange(material.UnitCost, newCost)
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	proposal := CostProposal{
		SupplierInvoiceId: invoiceId,
		RawMaterialId:     materialId,
		CostBefore:        material.UnitCost,
		CostAfter:         newCost,
		PercentChange:     utils.PercentChange(material.UnitCost, newCost),
		IsConfirmed:       utils.NewFalse(),
	}
	if err := tx.Create(&proposal).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

// GetPendingProposals lists the unconfirmed proposals of one invoice
// for the review screen, stable oldest-first.
func GetPendingProposals(ctx context.Context, invoiceId int) ([]*CostProposal, error) {
	db := config.GetDB()
	var proposals []*CostProposal
	err := db.WithContext(ctx).
		Preload("RawMaterial").
		Where("supplier_invoice_id = ? AND is_confirmed = ?", invoiceId, false).
		Order("id ASC").
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

func GetCostProposal(ctx context.Context, id int) (*CostProposal, error) {
	return utils.FetchModel[CostProposal](ctx, id, "RawMaterial")
}
