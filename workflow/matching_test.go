package workflow_test

import (
	"testing"

	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/workflow"
)

func TestMatchRawMaterialStrategies(t *testing.T) {
	ctx := setupTestDB(t)

	mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	mustCreateMaterial(t, ctx, "aço 1045", "kg", "12.00")
	mustCreateMaterial(t, ctx, "parafuso sextavado m8", "un", "0.50")

	cases := []struct {
		name        string
		description string
		unit        string
		wantName    string
		strategy    models.MatchStrategy
	}{
		{"exact name", "Aço 1020", "kg", "aço 1020", models.MatchStrategyExact},
		{"exact ignores unit", "aço 1045", "un", "aço 1045", models.MatchStrategyExact},
		{"name contained in description", "chapa aço 1020 3mm", "kg", "aço 1020", models.MatchStrategyContainment},
		{"keyword token", "parafuso cabeça chata 20mm", "un", "parafuso sextavado m8", models.MatchStrategyKeyword},
		{"containment needs matching unit", "chapa aço 1020 3mm", "un", "", models.MatchStrategyNone},
		{"short tokens carry no signal", "m8 aço kg", "kg", "", models.MatchStrategyNone},
		{"no match", "graxa mineral", "kg", "", models.MatchStrategyNone},
		{"empty description", "   ", "kg", "", models.MatchStrategyNone},
	}

	for _, tc := range cases {
		material, strategy, err := workflow.MatchRawMaterial(ctx, tc.description, tc.unit)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if strategy != tc.strategy {
			t.Fatalf("%s: expected strategy %s, got %s", tc.name, tc.strategy, strategy)
		}
		if tc.wantName == "" {
			if material != nil {
				t.Fatalf("%s: expected no match, got %s", tc.name, material.Name)
			}
			continue
		}
		if material == nil {
			t.Fatalf("%s: expected match %s, got none", tc.name, tc.wantName)
		}
		if material.Name != tc.wantName {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.wantName, material.Name)
		}
	}
}

func TestMatchRawMaterialPrefersMostSpecificName(t *testing.T) {
	ctx := setupTestDB(t)

	mustCreateMaterial(t, ctx, "aço", "kg", "9.00")
	mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")

	material, strategy, err := workflow.MatchRawMaterial(ctx, "chapa aço 1020 laminada", "kg")
	if err != nil {
		t.Fatalf("MatchRawMaterial: %v", err)
	}
	if strategy != models.MatchStrategyContainment {
		t.Fatalf("expected containment, got %s", strategy)
	}
	if material.Name != "aço 1020" {
		t.Fatalf("expected the longer name to win, got %s", material.Name)
	}

	// Same inputs resolve the same way on a second pass.
	again, _, err := workflow.MatchRawMaterial(ctx, "chapa aço 1020 laminada", "kg")
	if err != nil {
		t.Fatalf("second MatchRawMaterial: %v", err)
	}
	if again.ID != material.ID {
		t.Fatalf("expected deterministic resolution, got %d then %d", material.ID, again.ID)
	}
}

func TestMatchRawMaterialSkipsInactive(t *testing.T) {
	ctx := setupTestDB(t)

	steel := mustCreateMaterial(t, ctx, "aço 1020", "kg", "10.00")
	if _, err := models.ToggleActiveRawMaterial(ctx, steel.ID, false); err != nil {
		t.Fatalf("ToggleActiveRawMaterial: %v", err)
	}

	material, strategy, err := workflow.MatchRawMaterial(ctx, "aço 1020", "kg")
	if err != nil {
		t.Fatalf("MatchRawMaterial: %v", err)
	}
	if material != nil || strategy != models.MatchStrategyNone {
		t.Fatalf("expected inactive material to be excluded, got %+v / %s", material, strategy)
	}
}
