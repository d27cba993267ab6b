package workflow

import (
	"context"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"gorm.io/gorm"
)

// IngestionSummary reports what happened to each extracted line item.
// Unmatched and unchanged items are normal outcomes, not failures.
type IngestionSummary struct {
	TotalItems       int `json:"total_items"`
	MatchedItems     int `json:"matched_items"`
	ProposalsCreated int `json:"proposals_created"`
	SkippedNoMatch   int `json:"skipped_no_match"`
	SkippedUnchanged int `json:"skipped_unchanged"`
}

// ProcessExtractedInvoice consumes the structured output of the
// extraction pipeline: it persists the document and its line items,
// resolves each description through the matching engine and stages a
// cost proposal for every matched item whose unit value differs from
// the material's current cost. Nothing is applied here; proposals wait
// for ConfirmProposals.
func ProcessExtractedInvoice(ctx context.Context, input *models.NewSupplierInvoice) (*models.SupplierInvoice, *IngestionSummary, error) {

	logger := config.GetLogger()
	db := config.GetDB()

	invoice := models.SupplierInvoice{
		ExternalRef:    input.ExternalRef,
		SupplierName:   input.SupplierName,
		DocumentNumber: input.DocumentNumber,
		IssueDate:      input.IssueDate,
		TotalValue:     input.TotalValue,
		Status:         models.InvoiceStatusPending,
	}
	summary := IngestionSummary{TotalItems: len(input.Items)}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			config.LogError(logger, "ingestionWorkflow.go", "ProcessExtractedInvoice", "Create invoice", input, err)
			return err
		}

		for _, line := range input.Items {
			item := models.SupplierInvoiceItem{
				SupplierInvoiceId: invoice.ID,
				Description:       line.Description,
				Qty:               line.Qty,
				Unit:              line.Unit,
				UnitValue:         line.UnitValue,
				MatchStrategy:     models.MatchStrategyNone,
			}

			material, strategy, err := matchRawMaterial(tx, line.Description, line.Unit)
			if err != nil {
				config.LogError(logger, "ingestionWorkflow.go", "ProcessExtractedInvoice", "MatchRawMaterial", line, err)
				return err
			}
			if material == nil {
				summary.SkippedNoMatch++
				if err := tx.Create(&item).Error; err != nil {
					return err
				}
				continue
			}

			item.RawMaterialId = &material.ID
			item.MatchStrategy = strategy
			summary.MatchedItems++
			if err := tx.Create(&item).Error; err != nil {
				return err
			}

			proposal, err := models.ProposeCostChange(tx, &invoice.ID, material.ID, line.UnitValue)
			if err != nil {
				config.LogError(logger, "ingestionWorkflow.go", "ProcessExtractedInvoice", "ProposeCostChange", item, err)
				return err
			}
			if proposal == nil {
				summary.SkippedUnchanged++
				continue
			}
			summary.ProposalsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	full, err := models.GetSupplierInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, nil, err
	}
	return full, &summary, nil
}
