package models_test

import (
	"testing"

	"github.com/precifix/costing_backend/models"
	"github.com/shopspring/decimal"
)

func TestUpdateRawMaterialCostWritesHistory(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")

	updated, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("12.50"))
	if err != nil {
		t.Fatalf("UpdateRawMaterialCost: %v", err)
	}
	if !updated.UnitCost.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected cost 12.5, got %s", updated.UnitCost)
	}

	histories, err := models.GetCostHistories(ctx, steel.ID)
	if err != nil {
		t.Fatalf("GetCostHistories: %v", err)
	}
	if len(histories) != 1 {
		t.Fatalf("expected one history row, got %d", len(histories))
	}
	h := histories[0]
	if h.Reason != models.CostChangeReasonManual {
		t.Fatalf("expected Manual reason, got %s", h.Reason)
	}
	if h.SupplierInvoiceId != nil {
		t.Fatal("manual change must not reference an invoice")
	}
	if !h.CostBefore.Equal(decimal.RequireFromString("10")) || !h.CostAfter.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected history 10 -> 12.5, got %s -> %s", h.CostBefore, h.CostAfter)
	}
	if !h.PercentChange.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("expected percent change 25, got %s", h.PercentChange)
	}
	if h.UserId != 1 || h.UserName != "Test" {
		t.Fatalf("expected actor 1/Test, got %d/%s", h.UserId, h.UserName)
	}

	// The cascade marker must be co-committed.
	count, err := models.CountPendingRecalcTasks(ctx)
	if err != nil {
		t.Fatalf("CountPendingRecalcTasks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one pending recalc task, got %d", count)
	}
}

func TestUpdateRawMaterialCostNoopOnEqualValue(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")

	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("10.0000")); err != nil {
		t.Fatalf("UpdateRawMaterialCost: %v", err)
	}

	histories, err := models.GetCostHistories(ctx, steel.ID)
	if err != nil {
		t.Fatalf("GetCostHistories: %v", err)
	}
	if len(histories) != 0 {
		t.Fatalf("expected no history for an unchanged cost, got %d rows", len(histories))
	}
}

func TestUpdateRawMaterialCostRejectsNegative(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("-1")); err == nil {
		t.Fatal("expected negative cost to be rejected")
	}
}

func TestCostHistoriesNewestFirst(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := models.UpdateRawMaterialCost(ctx, steel.ID, decimal.RequireFromString("12.00")); err != nil {
		t.Fatalf("second update: %v", err)
	}

	histories, err := models.GetCostHistories(ctx, steel.ID)
	if err != nil {
		t.Fatalf("GetCostHistories: %v", err)
	}
	if len(histories) != 2 {
		t.Fatalf("expected two history rows, got %d", len(histories))
	}
	if !histories[0].CostAfter.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("expected newest row first, got after %s", histories[0].CostAfter)
	}
}

func TestDeleteRawMaterialGuards(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	_, err := models.CreateProductVariant(ctx, &models.NewProductVariant{
		Name: "suporte",
		Materials: []models.NewVariantMaterial{
			{RawMaterialId: steel.ID, Qty: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateProductVariant: %v", err)
	}

	if _, err := models.DeleteRawMaterial(ctx, steel.ID); err == nil {
		t.Fatal("expected delete of a composed material to fail")
	}

	loose := mustCreateMaterial(t, ctx, "tinta epóxi", "l", "30.00")
	if _, err := models.DeleteRawMaterial(ctx, loose.ID); err != nil {
		t.Fatalf("expected delete of an unreferenced material to succeed: %v", err)
	}
}

func TestRawMaterialCodeUnique(t *testing.T) {
	ctx := setupTestDB(t)

	if _, err := models.CreateRawMaterial(ctx, &models.NewRawMaterial{Name: "aço 1020", Code: "MP-001", Unit: "kg"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := models.CreateRawMaterial(ctx, &models.NewRawMaterial{Name: "aço 1045", Code: "MP-001", Unit: "kg"}); err == nil {
		t.Fatal("expected duplicate code to be rejected")
	}
}
