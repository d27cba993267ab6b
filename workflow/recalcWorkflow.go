package workflow

import (
	"context"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/utils"
	"gorm.io/gorm"
)

// RecalculateForMaterials walks the reverse composition edges of the
// changed materials, recomputes every dependent variant's cost from its
// full current composition and refreshes the suggested price of the
// variant and of each bound sellable item. Returns how many variants
// were updated; an empty input or no dependents is a zero result, not
// an error.
//
// Each pass recomputes from ground truth rather than applying a delta,
// so overlapping or repeated passes converge on the same caches and a
// failed pass only leaves them stale until the next one.
func RecalculateForMaterials(ctx context.Context, materialIds []int) (int, error) {
	if len(materialIds) == 0 {
		return 0, nil
	}
	variantIds, err := variantIdsForMaterials(ctx, materialIds)
	if err != nil {
		return 0, err
	}
	return RecalculateVariants(ctx, variantIds)
}

// RecalculateForLaborTypes is the labor-side mirror, used when hourly
// or machine rates change.
func RecalculateForLaborTypes(ctx context.Context, laborTypeIds []int) (int, error) {
	if len(laborTypeIds) == 0 {
		return 0, nil
	}
	variantIds, err := variantIdsForLaborTypes(ctx, laborTypeIds)
	if err != nil {
		return 0, err
	}
	return RecalculateVariants(ctx, variantIds)
}

// RecalculateAllVariants rebuilds every variant's caches from ground
// truth. Backs the cost-rebuild tool.
func RecalculateAllVariants(ctx context.Context) (int, error) {
	db := config.GetDB()
	var variantIds []int
	if err := db.WithContext(ctx).Model(&models.ProductVariant{}).
		Order("id ASC").
		Pluck("id", &variantIds).Error; err != nil {
		return 0, err
	}
	return RecalculateVariants(ctx, variantIds)
}

// RecalculateVariants refreshes an explicit set of variants. The
// scoped entry points above resolve their reverse edges into this.
func RecalculateVariants(ctx context.Context, variantIds []int) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	updated := 0
	for _, variantId := range variantIds {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.RefreshVariantCost(tx, variantId)
		})
		if err != nil {
			config.LogError(logger, "recalcWorkflow.go", "RecalculateVariants", "RefreshVariantCost", variantId, err)
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// variantIdsForMaterials is the reverse-edge lookup: which variants
// consume any of these materials. The variant_materials index on
// raw_material_id keeps this cheap; it runs on every confirmation.
func variantIdsForMaterials(ctx context.Context, materialIds []int) ([]int, error) {
	db := config.GetDB()
	var variantIds []int
	err := db.WithContext(ctx).Model(&models.VariantMaterial{}).
		Where("raw_material_id IN ?", utils.UniqueSlice(materialIds)).
		Distinct().
		Order("product_variant_id ASC").
		Pluck("product_variant_id", &variantIds).Error
	if err != nil {
		return nil, err
	}
	return variantIds, nil
}

func variantIdsForLaborTypes(ctx context.Context, laborTypeIds []int) ([]int, error) {
	db := config.GetDB()
	var variantIds []int
	err := db.WithContext(ctx).Model(&models.VariantLabor{}).
		Where("labor_type_id IN ?", utils.UniqueSlice(laborTypeIds)).
		Distinct().
		Order("product_variant_id ASC").
		Pluck("product_variant_id", &variantIds).Error
	if err != nil {
		return nil, err
	}
	return variantIds, nil
}
