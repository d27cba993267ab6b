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

// ProductVariant is one configuration of a product with its own
// composition and default margin. Cost and SuggestedPrice are derived
// caches over the composition edges; the edges are the source of truth
// and the caches are always safe to regenerate.
type ProductVariant struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku            string          `gorm:"size:100;index" json:"sku"`
	MarginPercent  decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"margin_percent"`
	Cost           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost"`
	SuggestedPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"suggested_price"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Materials []VariantMaterial `gorm:"foreignKey:ProductVariantId" json:"materials"`
	Labors    []VariantLabor    `gorm:"foreignKey:ProductVariantId" json:"labors"`
	Items     []SellableItem    `gorm:"foreignKey:ProductVariantId" json:"items"`
}

// VariantMaterial links a variant to a raw material with the quantity
// consumed per unit produced. Edges only ever point from variant to
// material, so the composition stays a DAG by construction.
type VariantMaterial struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ProductVariantId int             `gorm:"index;not null;uniqueIndex:idx_variant_material" json:"product_variant_id"`
	RawMaterialId    int             `gorm:"index;not null;uniqueIndex:idx_variant_material" json:"raw_material_id"`
	Qty              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Unit             string          `gorm:"size:20" json:"unit"`

	RawMaterial *RawMaterial `gorm:"foreignKey:RawMaterialId" json:"raw_material,omitempty"`
}

// VariantLabor links a variant to a labor type with the hours needed.
type VariantLabor struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ProductVariantId int             `gorm:"index;not null;uniqueIndex:idx_variant_labor" json:"product_variant_id"`
	LaborTypeId      int             `gorm:"index;not null;uniqueIndex:idx_variant_labor" json:"labor_type_id"`
	Hours            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"hours"`

	LaborType *LaborType `gorm:"foreignKey:LaborTypeId" json:"labor_type,omitempty"`
}

type NewVariantMaterial struct {
	RawMaterialId int             `json:"raw_material_id" binding:"required"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
	Unit          string          `json:"unit"`
}

type NewVariantLabor struct {
	LaborTypeId int             `json:"labor_type_id" binding:"required"`
	Hours       decimal.Decimal `json:"hours" binding:"required"`
}

type NewProductVariant struct {
	Name          string               `json:"name" binding:"required"`
	Sku           string               `json:"sku"`
	MarginPercent decimal.Decimal      `json:"margin_percent"`
	Materials     []NewVariantMaterial `json:"materials"`
	Labors        []NewVariantLabor    `json:"labors"`
}

func (input *NewProductVariant) validate(ctx context.Context, id int) error {
	if input.MarginPercent.IsNegative() {
		return errors.New("margin percent must not be negative")
	}
	if input.Sku != "" {
		if err := utils.ValidateUnique[ProductVariant](ctx, "sku", input.Sku, id); err != nil {
			return err
		}
	}
	materialIds := make([]int, 0, len(input.Materials))
	for _, m := range input.Materials {
		if !m.Qty.IsPositive() {
			return errors.New("material qty must be positive")
		}
		materialIds = append(materialIds, m.RawMaterialId)
	}
	if len(materialIds) != len(utils.UniqueSlice(materialIds)) {
		return errors.New("duplicate material in composition")
	}
	if len(materialIds) > 0 {
		if err := utils.ValidateResourcesId[RawMaterial](ctx, materialIds); err != nil {
			return errors.New("composition references an unknown material")
		}
	}
	laborIds := make([]int, 0, len(input.Labors))
	for _, l := range input.Labors {
		if !l.Hours.IsPositive() {
			return errors.New("labor hours must be positive")
		}
		laborIds = append(laborIds, l.LaborTypeId)
	}
	if len(laborIds) != len(utils.UniqueSlice(laborIds)) {
		return errors.New("duplicate labor type in composition")
	}
	if len(laborIds) > 0 {
		if err := utils.ValidateResourcesId[LaborType](ctx, laborIds); err != nil {
			return errors.New("composition references an unknown labor type")
		}
	}
	return nil
}

func (input *NewProductVariant) mapEdges(ctx context.Context) ([]VariantMaterial, []VariantLabor, error) {
	materials := make([]VariantMaterial, 0, len(input.Materials))
	for _, m := range input.Materials {
		unit := m.Unit
		if unit == "" {
			material, err := utils.FetchModel[RawMaterial](ctx, m.RawMaterialId)
			if err != nil {
				return nil, nil, err
			}
			unit = material.Unit
		}
		materials = append(materials, VariantMaterial{
			RawMaterialId: m.RawMaterialId,
			Qty:           m.Qty,
			Unit:          unit,
		})
	}
	labors := make([]VariantLabor, 0, len(input.Labors))
	for _, l := range input.Labors {
		labors = append(labors, VariantLabor{
			LaborTypeId: l.LaborTypeId,
			Hours:       l.Hours,
		})
	}
	return materials, labors, nil
}

func CreateProductVariant(ctx context.Context, input *NewProductVariant) (*ProductVariant, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}
	materials, labors, err := input.mapEdges(ctx)
	if err != nil {
		return nil, err
	}

	variant := ProductVariant{
		Name:          input.Name,
		Sku:           input.Sku,
		MarginPercent: input.MarginPercent,
		IsActive:      utils.NewTrue(),
		Materials:     materials,
		Labors:        labors,
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&variant).Error; err != nil {
			return err
		}
		// Seed the caches from the freshly written composition.
		return RefreshVariantCost(tx, variant.ID)
	})
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[ProductVariant](ctx, variant.ID, "Materials", "Labors", "Items")
}

// UpdateProductVariant replaces the composition wholesale and refreshes
// the caches in the same transaction.
func UpdateProductVariant(ctx context.Context, id int, input *NewProductVariant) (*ProductVariant, error) {

	if _, err := utils.FetchModel[ProductVariant](ctx, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	materials, labors, err := input.mapEdges(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ProductVariant{ID: id}).Updates(map[string]interface{}{
			"Name":          input.Name,
			"Sku":           input.Sku,
			"MarginPercent": input.MarginPercent,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_variant_id = ?", id).Delete(&VariantMaterial{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_variant_id = ?", id).Delete(&VariantLabor{}).Error; err != nil {
			return err
		}
		for i := range materials {
			materials[i].ProductVariantId = id
		}
		for i := range labors {
			labors[i].ProductVariantId = id
		}
		if len(materials) > 0 {
			if err := tx.Create(&materials).Error; err != nil {
				return err
			}
		}
		if len(labors) > 0 {
			if err := tx.Create(&labors).Error; err != nil {
				return err
			}
		}
		return RefreshVariantCost(tx, id)
	})
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[ProductVariant](ctx, id, "Materials", "Labors", "Items")
}

func DeleteProductVariant(ctx context.Context, id int) (*ProductVariant, error) {

	variant, err := utils.FetchModel[ProductVariant](ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := utils.ResourceCountWhere[SellableItem](ctx, "product_variant_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("variant still has sellable items")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_variant_id = ?", id).Delete(&VariantMaterial{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_variant_id = ?", id).Delete(&VariantLabor{}).Error; err != nil {
			return err
		}
		return tx.Delete(variant).Error
	})
	if err != nil {
		return nil, err
	}
	return variant, nil
}

func GetProductVariant(ctx context.Context, id int) (*ProductVariant, error) {
	return utils.FetchModel[ProductVariant](ctx, id, "Materials", "Materials.RawMaterial", "Labors", "Labors.LaborType", "Items")
}

func GetAllProductVariants(ctx context.Context) ([]*ProductVariant, error) {
	return utils.FetchAllModels[ProductVariant](ctx, "Materials", "Labors", "Items")
}
