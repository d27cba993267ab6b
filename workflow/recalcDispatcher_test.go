package workflow_test

import (
	"testing"
	"time"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestProcessOnceDrainsQueueAndRefreshesCaches(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "12.50")
	variant := mustCreateVariant(t, ctx, &models.NewProductVariant{
		Name:          "suporte",
		MarginPercent: decimal.NewFromInt(40),
		Materials:     []models.NewVariantMaterial{{RawMaterialId: steel.ID, Qty: decimal.NewFromInt(2)}},
	})

	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("15.00")); err != nil {
		t.Fatalf("UpdateRawMaterialCost: %v", err)
	}
	count, err := models.CountPendingRecalcTasks(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected one pending task, got %d/%v", count, err)
	}

	processor := workflow.NewRecalcProcessor(config.GetLogger())
	processor.ProcessOnce(ctx)

	count, err = models.CountPendingRecalcTasks(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected queue drained, got %d/%v", count, err)
	}
	got, err := models.GetProductVariant(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetProductVariant: %v", err)
	}
	if !got.Cost.Equal(decimal.RequireFromString("30")) || !got.SuggestedPrice.Equal(decimal.RequireFromString("42")) {
		t.Fatalf("expected 30/42 after background pass, got %s/%s", got.Cost, got.SuggestedPrice)
	}
}

func TestClaimRespectsFreshLocksAndTakesOverStaleOnes(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("UpdateRawMaterialCost: %v", err)
	}

	ttl := 30 * time.Second
	claimed, err := models.ClaimPendingRecalcTasks(ctx, "worker-a", 10, ttl)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected one claimed task, got %d", len(claimed))
	}

	// A fresh lock keeps other workers out.
	second, err := models.ClaimPendingRecalcTasks(ctx, "worker-b", 10, ttl)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no tasks while locked, got %d", len(second))
	}

	// Age the lock past the TTL; the task becomes claimable again.
	stale := time.Now().UTC().Add(-ttl - time.Minute)
	if err := config.GetDB().Model(&models.RecalcTask{}).
		Where("id = ?", claimed[0].ID).
		Update("locked_at", stale).Error; err != nil {
		t.Fatalf("age lock: %v", err)
	}
	takeover, err := models.ClaimPendingRecalcTasks(ctx, "worker-b", 10, ttl)
	if err != nil {
		t.Fatalf("takeover claim: %v", err)
	}
	if len(takeover) != 1 || takeover[0].ID != claimed[0].ID {
		t.Fatalf("expected stale task taken over, got %+v", takeover)
	}
}

func TestReleaseRecalcTasksRecordsFailureAndRequeues(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("UpdateRawMaterialCost: %v", err)
	}
	claimed, err := models.ClaimPendingRecalcTasks(ctx, "worker-a", 10, 30*time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %d/%v", len(claimed), err)
	}

	if err := models.ReleaseRecalcTasks(ctx, []int{claimed[0].ID}, errBoom); err != nil {
		t.Fatalf("ReleaseRecalcTasks: %v", err)
	}

	var task models.RecalcTask
	if err := config.GetDB().First(&task, claimed[0].ID).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if task.Status != models.RecalcStatusPending {
		t.Fatalf("expected task back to Pending, got %s", task.Status)
	}
	if task.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", task.Attempts)
	}
	if task.LastError == nil || *task.LastError != errBoom.Error() {
		t.Fatalf("expected failure recorded, got %v", task.LastError)
	}
	if task.LockedAt != nil || task.LockedBy != nil {
		t.Fatal("expected lock cleared on release")
	}

	// Immediately claimable again.
	again, err := models.ClaimPendingRecalcTasks(ctx, "worker-b", 10, 30*time.Second)
	if err != nil || len(again) != 1 {
		t.Fatalf("reclaim after release: %d/%v", len(again), err)
	}
}

func TestEnqueueCollapsesIntoExistingPendingTask(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("12.00")); err != nil {
		t.Fatalf("second update: %v", err)
	}

	count, err := models.CountPendingRecalcTasks(ctx)
	if err != nil {
		t.Fatalf("CountPendingRecalcTasks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected updates to collapse into one pending task, got %d", count)
	}
}

func TestCostChangeWhileTaskClaimedStaysQueued(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	variant := mustCreateVariant(t, ctx, &models.NewProductVariant{
		Name:      "eixo",
		Materials: []models.NewVariantMaterial{{RawMaterialId: steel.ID, Qty: decimal.NewFromInt(1)}},
	})

	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("first update: %v", err)
	}
	claimed, err := models.ClaimPendingRecalcTasks(ctx, "worker-a", 10, 30*time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %d/%v", len(claimed), err)
	}
	// Worker recalculates against the cost it saw at claim time.
	if _, err := workflow.RecalculateForMaterials(ctx, []int{steel.ID}); err != nil {
		t.Fatalf("worker recalc: %v", err)
	}

	// A second change commits while the first task is still claimed; it
	// must stage a fresh task instead of deduping against the claimed one.
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("12.00")); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if err := models.MarkRecalcTasksDone(ctx, []int{claimed[0].ID}); err != nil {
		t.Fatalf("MarkRecalcTasksDone: %v", err)
	}

	count, err := models.CountPendingRecalcTasks(ctx)
	if err != nil {
		t.Fatalf("CountPendingRecalcTasks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the second change to stay queued, got %d pending", count)
	}

	// The queued task heals the stale cache.
	processor := workflow.NewRecalcProcessor(config.GetLogger())
	processor.ProcessOnce(ctx)

	got, err := models.GetProductVariant(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetProductVariant: %v", err)
	}
	if !got.Cost.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("expected variant caught up to 12, got %s", got.Cost)
	}
	count, err = models.CountPendingRecalcTasks(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected queue drained, got %d/%v", count, err)
	}
}

func TestMarkDoneForMaterialsLeavesClaimedTasksToTheirWorker(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("UpdateRawMaterialCost: %v", err)
	}
	claimed, err := models.ClaimPendingRecalcTasks(ctx, "worker-a", 10, 30*time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %d/%v", len(claimed), err)
	}

	// The synchronous cascade path finalizes by material id; a task a
	// worker holds is not its to finalize.
	if err := models.MarkRecalcTasksDoneForMaterials(ctx, []int{steel.ID}); err != nil {
		t.Fatalf("MarkRecalcTasksDoneForMaterials: %v", err)
	}
	count, err := models.CountPendingRecalcTasks(ctx)
	if err != nil {
		t.Fatalf("CountPendingRecalcTasks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the claimed task untouched, got %d pending", count)
	}
}
