package workflow

import (
	"context"
	"errors"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/utils"
	"gorm.io/gorm"
)

var errProposalAlreadyConfirmed = errors.New("proposal already confirmed")

// ConfirmationResult reports which proposals were applied and which
// were excluded. Skips are data, not errors: a stale review screen may
// reference ids that were confirmed meanwhile or never belonged to the
// invoice, and the valid remainder must still go through.
type ConfirmationResult struct {
	ConfirmedProposalIds []int `json:"confirmed_proposal_ids"`
	SkippedProposalIds   []int `json:"skipped_proposal_ids"`
	AppliedMaterialIds   []int `json:"applied_material_ids"`
}

// ConfirmProposals applies the reviewed subset of an invoice's cost
// proposals. Each valid proposal commits in its own transaction under
// the per-material advisory lock: the cost update, the history row and
// the confirmed flag land together or not at all, and a RecalcTask is
// co-committed so the cascade can never be lost. Batch-level
// all-or-nothing is deliberately not provided.
//
// The caller owns the second phase: invoke the cascade with
// AppliedMaterialIds. A failed cascade leaves the confirmation intact
// and the task rows pending for the background processor.
func ConfirmProposals(ctx context.Context, invoiceId int, proposalIds []int) (*ConfirmationResult, error) {

	logger := config.GetLogger()
	db := config.GetDB()
	result := ConfirmationResult{
		ConfirmedProposalIds: []int{},
		SkippedProposalIds:   []int{},
		AppliedMaterialIds:   []int{},
	}

	for _, proposalId := range utils.UniqueSlice(proposalIds) {

		var proposal models.CostProposal
		err := db.WithContext(ctx).
			Where("id = ? AND supplier_invoice_id = ? AND is_confirmed = ?", proposalId, invoiceId, false).
			First(&proposal).Error
		if err != nil {
			// unknown id, foreign invoice or already confirmed
			result.SkippedProposalIds = append(result.SkippedProposalIds, proposalId)
			continue
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := models.AcquireMaterialCostLock(tx, proposal.RawMaterialId); err != nil {
				return err
			}
			defer models.ReleaseMaterialCostLock(tx, proposal.RawMaterialId)

			// Flip the flag first with a guarded update; zero rows means a
			// concurrent confirmation won and this one becomes a skip.
			res := tx.Model(&models.CostProposal{}).
				Where("id = ? AND is_confirmed = ?", proposal.ID, false).
				Update("IsConfirmed", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errProposalAlreadyConfirmed
			}

			var material models.RawMaterial
			if err := tx.First(&material, proposal.RawMaterialId).Error; err != nil {
				return err
			}
			before := material.UnitCost
			if err := tx.Model(&material).Update("UnitCost", proposal.CostAfter).Error; err != nil {
				return err
			}
			if err := models.CreateCostHistory(tx, material.ID, proposal.SupplierInvoiceId, before, proposal.CostAfter, models.CostChangeReasonDocumentDerived); err != nil {
				return err
			}
			return models.EnqueueRecalcTask(tx, material.ID)
		})
		if err == errProposalAlreadyConfirmed {
			result.SkippedProposalIds = append(result.SkippedProposalIds, proposalId)
			continue
		}
		if err != nil {
			config.LogError(logger, "confirmWorkflow.go", "ConfirmProposals", "apply proposal", proposal, err)
			return nil, err
		}

		result.ConfirmedProposalIds = append(result.ConfirmedProposalIds, proposalId)
		result.AppliedMaterialIds = append(result.AppliedMaterialIds, proposal.RawMaterialId)
	}

	result.AppliedMaterialIds = utils.UniqueSlice(result.AppliedMaterialIds)

	if len(result.ConfirmedProposalIds) > 0 {
		status := models.InvoiceStatusReviewed
		pending, err := models.GetPendingProposals(ctx, invoiceId)
		if err == nil && len(pending) == 0 {
			status = models.InvoiceStatusConfirmed
		}
		if err := models.SetSupplierInvoiceStatus(ctx, invoiceId, status); err != nil {
			config.LogError(logger, "confirmWorkflow.go", "ConfirmProposals", "SetSupplierInvoiceStatus", invoiceId, err)
		}
	}

	return &result, nil
}
