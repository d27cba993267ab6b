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

// RawMaterial is the canonical record of a purchasable input and its
// current unit cost. The cost is mutated only through the confirmation
// workflow or UpdateRawMaterialCost; both append a CostHistory row in
// the same transaction.
type RawMaterial struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	Code      string          `gorm:"size:100;index" json:"code"`
	Unit      string          `gorm:"size:20;not null" json:"unit" binding:"required"`
	UnitCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRawMaterial struct {
	Name     string          `json:"name" binding:"required"`
	Code     string          `json:"code"`
	Unit     string          `json:"unit" binding:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

func (input *NewRawMaterial) validate(ctx context.Context, id int) error {
	if input.UnitCost.IsNegative() {
		return errors.New("unit cost must not be negative")
	}
	if input.Code != "" {
		if err := utils.ValidateUnique[RawMaterial](ctx, "code", input.Code, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateRawMaterial(ctx context.Context, input *NewRawMaterial) (*RawMaterial, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	material := RawMaterial{
		Name:     input.Name,
		Code:     input.Code,
		Unit:     input.Unit,
		UnitCost: input.UnitCost,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&material).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

// UpdateRawMaterial changes descriptive fields only. Cost goes through
// UpdateRawMaterialCost so history is never skipped.
func UpdateRawMaterial(ctx context.Context, id int, input *NewRawMaterial) (*RawMaterial, error) {

	material, err := utils.FetchModel[RawMaterial](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(material).Updates(map[string]interface{}{
		"Name": input.Name,
		"Code": input.Code,
		"Unit": input.Unit,
	}).Error; err != nil {
		return nil, err
	}
	return material, nil
}

// UpdateRawMaterialCost is the manual edit path: it applies the new cost
// under the per-material advisory lock, co-commits the audit row and
// queues the dependent variants for recalculation. Passing the current
// cost is a no-op.
func UpdateRawMaterialCost(ctx context.Context, id int, newCost decimal.Decimal) (*RawMaterial, error) {

	if newCost.IsNegative() {
		return nil, errors.New("unit cost must not be negative")
	}

	db := config.GetDB()
	var material *RawMaterial
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireMaterialCostLock(tx, id); err != nil {
			return err
		}
		defer ReleaseMaterialCostLock(tx, id)

		var m RawMaterial
		if err := tx.First(&m, id).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		material = &m
		if m.UnitCost.Equal(newCost) {
			return nil
		}
		before := m.UnitCost
		if err := tx.Model(&m).Update("UnitCost", newCost).Error; err != nil {
			return err
		}
		if err := CreateCostHistory(tx, m.ID, nil, before, newCost, CostChangeReasonManual); err != nil {
			return err
		}
		material.UnitCost = newCost
		return EnqueueRecalcTask(tx, m.ID)
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

// DeleteRawMaterial refuses to remove a material that is still part of
// any variant composition or referenced by an invoice item.
func DeleteRawMaterial(ctx context.Context, id int) (*RawMaterial, error) {

	material, err := utils.FetchModel[RawMaterial](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[VariantMaterial](ctx, "raw_material_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("material is used in a product composition")
	}
	count, err = utils.ResourceCountWhere[SupplierInvoiceItem](ctx, "raw_material_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("material is referenced by an invoice item")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(material).Error; err != nil {
		return nil, err
	}
	return material, nil
}

func ToggleActiveRawMaterial(ctx context.Context, id int, isActive bool) (*RawMaterial, error) {
	material, err := utils.FetchModel[RawMaterial](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(material).Update("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	return material, nil
}

func GetRawMaterial(ctx context.Context, id int) (*RawMaterial, error) {
	return utils.FetchModel[RawMaterial](ctx, id)
}

func GetAllRawMaterials(ctx context.Context) ([]*RawMaterial, error) {
	return utils.FetchAllModels[RawMaterial](ctx)
}
