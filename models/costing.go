package models

import (
	"context"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The bill-of-materials cost formula. Pure over a preloaded
// composition; both the on-demand cost read and the cascade
// recalculation go through these functions so the two can never drift.

// MaterialsCost is the sum of qty * current unit cost over the
// material edges.
func MaterialsCost(edges []VariantMaterial) decimal.Decimal {
	total := decimal.Zero
	for _, edge := range edges {
		if edge.RawMaterial == nil {
			continue
		}
		total = total.Add(edge.Qty.Mul(edge.RawMaterial.UnitCost))
	}
	return total
}

// LaborCost is the sum of hours * effective hourly rate over the labor
// edges. The machine surcharge applies only when the labor type is
// flagged as including a machine; a missing rate on a flagged row is an
// upstream validation failure and contributes zero here.
func LaborCost(edges []VariantLabor) decimal.Decimal {
	total := decimal.Zero
	for _, edge := range edges {
		if edge.LaborType == nil {
			continue
		}
		rate := edge.LaborType.HourlyRate
		if edge.LaborType.IncludesMachine != nil && *edge.LaborType.IncludesMachine && edge.LaborType.MachineHourlyRate != nil {
			rate = rate.Add(*edge.LaborType.MachineHourlyRate)
		}
		total = total.Add(edge.Hours.Mul(rate))
	}
	return total
}

func TotalCost(materials []VariantMaterial, labors []VariantLabor) decimal.Decimal {
	return MaterialsCost(materials).Add(LaborCost(labors))
}

// VariantCostBreakdown is the on-demand cost view of one variant,
// computed from ground truth rather than the caches.
type VariantCostBreakdown struct {
	ProductVariantId int             `json:"product_variant_id"`
	MaterialsCost    decimal.Decimal `json:"materials_cost"`
	LaborCost        decimal.Decimal `json:"labor_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
	SuggestedPrice   decimal.Decimal `json:"suggested_price"`
}

// ComputeVariantCost evaluates the formula against the variant's
// current composition without touching the caches.
func ComputeVariantCost(ctx context.Context, variantId int) (*VariantCostBreakdown, error) {
	db := config.GetDB()
	variant, materials, labors, err := loadComposition(db.WithContext(ctx), variantId)
	if err != nil {
		return nil, err
	}
	materialsCost := MaterialsCost(materials)
	laborCost := LaborCost(labors)
	total := materialsCost.Add(laborCost)
	return &VariantCostBreakdown{
		ProductVariantId: variant.ID,
		MaterialsCost:    materialsCost,
		LaborCost:        laborCost,
		TotalCost:        total,
		MarginPercent:    variant.MarginPercent,
		SuggestedPrice:   utils.ApplyMargin(total, variant.MarginPercent),
	}, nil
}

// RefreshVariantCost recomputes one variant's cost and suggested price
// from its full current composition and persists the caches, then does
// the same for every sellable item bound to the variant with the item's
// own margin. Running it twice against unchanged data writes identical
// values, so retries are harmless.
func RefreshVariantCost(tx *gorm.DB, variantId int) error {
	variant, materials, labors, err := loadComposition(tx, variantId)
	if err != nil {
		return err
	}

	cost := TotalCost(materials, labors)
	price := utils.ApplyMargin(cost, variant.MarginPercent)
	if err := tx.Model(&ProductVariant{ID: variant.ID}).Updates(map[string]interface{}{
		"Cost":           cost,
		"SuggestedPrice": price,
	}).Error; err != nil {
		return err
	}

	var items []SellableItem
	if err := tx.Where("product_variant_id = ?", variant.ID).Find(&items).Error; err != nil {
		return err
	}
	for _, item := range items {
		if err := tx.Model(&SellableItem{ID: item.ID}).Updates(map[string]interface{}{
			"Cost":           cost,
			"SuggestedPrice": utils.ApplyMargin(cost, item.MarginPercent),
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func loadComposition(tx *gorm.DB, variantId int) (*ProductVariant, []VariantMaterial, []VariantLabor, error) {
	var variant ProductVariant
	if err := tx.First(&variant, variantId).Error; err != nil {
		return nil, nil, nil, utils.ErrorRecordNotFound
	}
	var materials []VariantMaterial
	if err := tx.Preload("RawMaterial").Where("product_variant_id = ?", variantId).Find(&materials).Error; err != nil {
		return nil, nil, nil, err
	}
	var labors []VariantLabor
	if err := tx.Preload("LaborType").Where("product_variant_id = ?", variantId).Find(&labors).Error; err != nil {
		return nil, nil, nil, err
	}
	return &variant, materials, labors, nil
}
