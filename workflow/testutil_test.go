package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

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

func mustCreateLabor(t *testing.T, ctx context.Context, name, rate string) *models.LaborType {
	t.Helper()
	labor, err := models.CreateLaborType(ctx, &models.NewLaborType{
		Name:       name,
		HourlyRate: decimal.RequireFromString(rate),
	})
	if err != nil {
		t.Fatalf("CreateLaborType(%s): %v", name, err)
	}
	return labor
}

func mustCreateVariant(t *testing.T, ctx context.Context, input *models.NewProductVariant) *models.ProductVariant {
	t.Helper()
	variant, err := models.CreateProductVariant(ctx, input)
	if err != nil {
		t.Fatalf("CreateProductVariant(%s): %v", input.Name, err)
	}
	return variant
}
