package workflow_test

import (
	"testing"

	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestProcessExtractedInvoice(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	paint := mustCreateMaterial(t, ctx, "tinta epóxi", "l", "30.00")

	invoice, summary, err := workflow.ProcessExtractedInvoice(ctx, &models.NewSupplierInvoice{
		SupplierName:   "metalurgica abc",
		DocumentNumber: "NF-1042",
		TotalValue:     decimal.RequireFromString("500.00"),
		Items: []models.NewSupplierInvoiceItem{
			// matched, cost differs: stages a proposal
			{Description: "chapa aço 1020 3mm", Qty: decimal.NewFromInt(20), Unit: "kg", UnitValue: decimal.RequireFromString("12.50")},
			// matched, cost unchanged: no proposal
			{Description: "tinta epóxi", Qty: decimal.NewFromInt(2), Unit: "l", UnitValue: decimal.RequireFromString("30.00")},
			// no catalog entry
			{Description: "frete expresso", Qty: decimal.NewFromInt(1), Unit: "un", UnitValue: decimal.RequireFromString("80.00")},
		},
	})
	if err != nil {
		t.Fatalf("ProcessExtractedInvoice: %v", err)
	}

	if summary.TotalItems != 3 || summary.MatchedItems != 2 {
		t.Fatalf("expected 3 items / 2 matched, got %+v", summary)
	}
	if summary.ProposalsCreated != 1 || summary.SkippedUnchanged != 1 || summary.SkippedNoMatch != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if invoice.Status != models.InvoiceStatusPending {
		t.Fatalf("expected Pending invoice, got %s", invoice.Status)
	}
	if len(invoice.Items) != 3 {
		t.Fatalf("expected 3 persisted items, got %d", len(invoice.Items))
	}

	byDescription := map[string]models.SupplierInvoiceItem{}
	for _, item := range invoice.Items {
		byDescription[item.Description] = item
	}
	matched := byDescription["chapa aço 1020 3mm"]
	if matched.RawMaterialId == nil || *matched.RawMaterialId != steel.ID {
		t.Fatalf("expected steel match, got %+v", matched)
	}
	if matched.MatchStrategy != models.MatchStrategyContainment {
		t.Fatalf("expected containment tag, got %s", matched.MatchStrategy)
	}
	unchanged := byDescription["tinta epóxi"]
	if unchanged.RawMaterialId == nil || *unchanged.RawMaterialId != paint.ID {
		t.Fatalf("expected paint match, got %+v", unchanged)
	}
	if unchanged.MatchStrategy != models.MatchStrategyExact {
		t.Fatalf("expected exact tag, got %s", unchanged.MatchStrategy)
	}
	unmatched := byDescription["frete expresso"]
	if unmatched.RawMaterialId != nil || unmatched.MatchStrategy != models.MatchStrategyNone {
		t.Fatalf("expected unmatched item, got %+v", unmatched)
	}

	// Only the changed matched line stages a proposal, nothing applied.
	pending, err := models.GetPendingProposals(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetPendingProposals: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending proposal, got %d", len(pending))
	}
	if pending[0].RawMaterialId != steel.ID {
		t.Fatalf("expected proposal for steel, got material %d", pending[0].RawMaterialId)
	}
	material, err := models.GetRawMaterial(ctx, steel.ID)
	if err != nil {
		t.Fatalf("GetRawMaterial: %v", err)
	}
	if !material.UnitCost.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("ingestion must not apply costs, material is at %s", material.UnitCost)
	}
}

func TestProcessExtractedInvoiceDuplicateLinesRefreshOneProposal(t *testing.T) {
	ctx := setupTestDB(t)

	mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")

	invoice, summary, err := workflow.ProcessExtractedInvoice(ctx, &models.NewSupplierInvoice{
		SupplierName: "metalurgica abc",
		Items: []models.NewSupplierInvoiceItem{
			{Description: "aço 1020", Qty: decimal.NewFromInt(5), Unit: "kg", UnitValue: decimal.RequireFromString("12.00")},
			{Description: "aço 1020", Qty: decimal.NewFromInt(5), Unit: "kg", UnitValue: decimal.RequireFromString("12.80")},
		},
	})
	if err != nil {
		t.Fatalf("ProcessExtractedInvoice: %v", err)
	}
	if summary.MatchedItems != 2 {
		t.Fatalf("expected both lines matched, got %+v", summary)
	}

	pending, err := models.GetPendingProposals(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetPendingProposals: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected a single pending proposal per material, got %d", len(pending))
	}
	// The later line wins the refresh.
	if !pending[0].CostAfter.Equal(decimal.RequireFromString("12.8")) {
		t.Fatalf("expected cost after 12.8, got %s", pending[0].CostAfter)
	}
}
