package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/utils"
	"github.com/precifix/costing_backend/workflow"
)

// cost-rebuild recomputes variant cost/price caches from the
// composition graph. The caches are never authoritative, so a full
// rebuild is always safe; use it after imports, migrations or any
// suspected stale-cache incident.
func main() {
	variantID := flag.Int("variant-id", 0, "Optional: rebuild a single variant")
	dryRun := flag.Bool("dry-run", false, "Report the computed costs without persisting")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")

	var variantIds []int
	if *variantID > 0 {
		variantIds = []int{*variantID}
	} else {
		err := db.WithContext(ctx).Model(&models.ProductVariant{}).Order("id ASC").Pluck("id", &variantIds).Error
		utils.ErrorPanic(err)
	}

	if *dryRun {
		for _, id := range variantIds {
			breakdown, err := models.ComputeVariantCost(ctx, id)
			utils.ErrorPanic(err)
			fmt.Printf("variant=%d materials=%s labor=%s total=%s price=%s\n",
				id, breakdown.MaterialsCost, breakdown.LaborCost, breakdown.TotalCost, breakdown.SuggestedPrice)
		}
		return
	}

	updated, err := workflow.RecalculateVariants(ctx, variantIds)
	utils.ErrorPanic(err)
	fmt.Printf("rebuilt %d variants\n", updated)
}
