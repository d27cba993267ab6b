package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// PercentChange returns (after-before)/before*100 rounded to 2 decimal
// places. A zero before has no meaningful ratio; the stored percent is
// 0 and the absolute delta carries the information.
func PercentChange(before, after decimal.Decimal) decimal.Decimal {
	if before.IsZero() {
		return decimal.Zero
	}
	return after.Sub(before).Div(before).Mul(decimal.NewFromInt(100)).Round(2)
}

// ApplyMargin returns cost*(1+marginPercent/100) rounded to 4 decimal
// places, matching the decimal(20,4) money columns.
func ApplyMargin(cost, marginPercent decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	factor := one.Add(marginPercent.Div(decimal.NewFromInt(100)))
	return cost.Mul(factor).Round(4)
}

func UniqueSlice[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
