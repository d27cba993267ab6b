package models_test

import (
	"context"
	"testing"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
)

// setupTestDB points the global DB at a fresh in-memory SQLite store
// and returns a context carrying a test actor for history rows.
func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	config.ConnectTestDatabase()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func mustCreateMaterial(t *testing.T, ctx context.Context, name, unit, cost string) *models.RawMaterial {
	t.Helper()
	material, err := models.CreateRawMaterial(ctx, &models.NewRawMaterial{
		Name:     name,
		Unit:     unit,
		UnitCost: decimal.RequireFromString(cost),
	})
	if err != nil {
		t.Fatalf("CreateRawMaterial(%s): %v", name, err)
	}
	return material
}

func mustCreateLabor(t *testing.T, ctx context.Context, name, rate string, machineRate *string) *models.LaborType {
	t.Helper()
	input := &models.NewLaborType{
		Name:       name,
		HourlyRate: decimal.RequireFromString(rate),
	}
	if machineRate != nil {
		mr := decimal.RequireFromString(*machineRate)
		input.IncludesMachine = utils.NewTrue()
		input.MachineHourlyRate = &mr
	}
	labor, err := models.CreateLaborType(ctx, input)
	if err != nil {
		t.Fatalf("CreateLaborType(%s): %v", name, err)
	}
	return labor
}
