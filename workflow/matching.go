package workflow

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"gorm.io/gorm"
)

// Tokens this short carry no signal in supplier descriptions (grade
// digits, prepositions, unit suffixes). Tunable, covered by tests.
const keywordMinLength = 4

// MatchRawMaterial resolves a free-text invoice line description to a
// single active raw material, or nil when nothing matches. Three
// fallback strategies run in strict order and the first hit wins:
//
//  1. Exact: case-insensitive equality with the material name.
//  2. Containment: the material name appears inside the description
//     (descriptions are the longer, noisier side: "Chapa Aço 1020 3mm"
//     contains the canonical "Aço 1020"), constrained to the line's
//     unit of measure.
//  3. Keyword: each whitespace token of the description longer than
//     keywordMinLength-1 runes, in original order, is looked up inside
//     material names, unit-constrained.
//
// Greedy and order-sensitive on purpose; ties break on the most
// specific (longest) name and then the lowest id, so the same inputs
// against the same data always resolve the same way.
func MatchRawMaterial(ctx context.Context, description string, unit string) (*models.RawMaterial, models.MatchStrategy, error) {
	return matchRawMaterial(config.GetDB().WithContext(ctx), description, unit)
}

func matchRawMaterial(tx *gorm.DB, description string, unit string) (*models.RawMaterial, models.MatchStrategy, error) {

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, models.MatchStrategyNone, nil
	}
	descLower := strings.ToLower(description)
	unitLower := strings.ToLower(strings.TrimSpace(unit))

	// exact name match
	material, err := firstMaterial(tx.
		Where("LOWER(name) = ?", descLower).
		Order("id ASC"))
	if err != nil {
		return nil, models.MatchStrategyNone, err
	}
	if material != nil {
		return material, models.MatchStrategyExact, nil
	}

	// material name contained in the description, same unit
	material, err = firstMaterial(tx.
		Where("INSTR(?, LOWER(name)) > 0", descLower).
		Where("LOWER(unit) = ?", unitLower).
		Order("LENGTH(name) DESC, id ASC"))
	if err != nil {
		return nil, models.MatchStrategyNone, err
	}
	if material != nil {
		return material, models.MatchStrategyContainment, nil
	}

	// keyword lookup, token by token in original order
	for _, token := range strings.Fields(descLower) {
		if utf8.RuneCountInString(token) < keywordMinLength {
			continue
		}
		material, err = firstMaterial(tx.
			Where("INSTR(LOWER(name), ?) > 0", token).
			Where("LOWER(unit) = ?", unitLower).
			Order("LENGTH(name) DESC, id ASC"))
		if err != nil {
			return nil, models.MatchStrategyNone, err
		}
		if material != nil {
			return material, models.MatchStrategyKeyword, nil
		}
	}

	return nil, models.MatchStrategyNone, nil
}

func firstMaterial(q *gorm.DB) (*models.RawMaterial, error) {
	var materials []models.RawMaterial
	err := q.Where("is_active = ?", true).Limit(1).Find(&materials).Error
	if err != nil {
		return nil, err
	}
	if len(materials) == 0 {
		return nil, nil
	}
	return &materials[0], nil
}
