package models

import (
	"context"
	"errors"
	"time"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
)

// LaborType carries an hourly rate and, when IncludesMachine is set, a
// mandatory machine hourly surcharge. The machine-rate rule is enforced
// here, at write time, so the costing formula never meets an
// inconsistent row.
type LaborType struct {
	ID                int              `gorm:"primary_key" json:"id"`
	Name              string           `gorm:"size:255;not null" json:"name" binding:"required"`
	HourlyRate        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"hourly_rate"`
	IncludesMachine   *bool            `gorm:"not null;default:false" json:"includes_machine"`
	MachineHourlyRate *decimal.Decimal `gorm:"type:decimal(20,4)" json:"machine_hourly_rate"`
	IsActive          *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLaborType struct {
	Name              string           `json:"name" binding:"required"`
	HourlyRate        decimal.Decimal  `json:"hourly_rate"`
	IncludesMachine   *bool            `json:"includes_machine"`
	MachineHourlyRate *decimal.Decimal `json:"machine_hourly_rate"`
}

// validateLaborConfig checks the state that will actually be persisted.
// Updates may be partial, so callers resolve the effective values first;
// validating only the input would let a partial update strand a row with
// IncludesMachine set and no machine rate.
func validateLaborConfig(hourlyRate decimal.Decimal, includesMachine *bool, machineHourlyRate *decimal.Decimal) error {
	if hourlyRate.IsNegative() {
		return errors.New("hourly rate must not be negative")
	}
	if includesMachine != nil && *includesMachine {
		if machineHourlyRate == nil || machineHourlyRate.IsZero() {
			return errors.New("machine hourly rate is required when labor includes machine")
		}
		if machineHourlyRate.IsNegative() {
			return errors.New("machine hourly rate must not be negative")
		}
	}
	return nil
}

func (input *NewLaborType) validate() error {
	return validateLaborConfig(input.HourlyRate, input.IncludesMachine, input.MachineHourlyRate)
}

func CreateLaborType(ctx context.Context, input *NewLaborType) (*LaborType, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	includesMachine := utils.NewFalse()
	if input.IncludesMachine != nil {
		includesMachine = input.IncludesMachine
	}
	labor := LaborType{
		Name:              input.Name,
		HourlyRate:        input.HourlyRate,
		IncludesMachine:   includesMachine,
		MachineHourlyRate: input.MachineHourlyRate,
		IsActive:          utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&labor).Error; err != nil {
		return nil, err
	}
	return &labor, nil
}

func UpdateLaborType(ctx context.Context, id int, input *NewLaborType) (*LaborType, error) {

	labor, err := utils.FetchModel[LaborType](ctx, id)
	if err != nil {
		return nil, err
	}

	// Partial updates fall back to the stored values; validation runs
	// against the effective row, never the bare input.
	includesMachine := labor.IncludesMachine
	if input.IncludesMachine != nil {
		includesMachine = input.IncludesMachine
	}
	machineHourlyRate := labor.MachineHourlyRate
	if input.MachineHourlyRate != nil {
		machineHourlyRate = input.MachineHourlyRate
	}
	if err := validateLaborConfig(input.HourlyRate, includesMachine, machineHourlyRate); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(labor).Updates(map[string]interface{}{
		"Name":              input.Name,
		"HourlyRate":        input.HourlyRate,
		"IncludesMachine":   includesMachine,
		"MachineHourlyRate": machineHourlyRate,
	}).Error; err != nil {
		return nil, err
	}
	// Rate changes flow into variant costs; queue dependents.
	if err := EnqueueRecalcTaskForLabor(ctx, id); err != nil {
		return nil, err
	}
	return labor, nil
}

func DeleteLaborType(ctx context.Context, id int) (*LaborType, error) {

	labor, err := utils.FetchModel[LaborType](ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := utils.ResourceCountWhere[VariantLabor](ctx, "labor_type_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("labor type is used in a product composition")
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(labor).Error; err != nil {
		return nil, err
	}
	return labor, nil
}

func GetLaborType(ctx context.Context, id int) (*LaborType, error) {
	return utils.FetchModel[LaborType](ctx, id)
}

func GetAllLaborTypes(ctx context.Context) ([]*LaborType, error) {
	return utils.FetchAllModels[LaborType](ctx)
}
