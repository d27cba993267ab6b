package models

import (
	"context"
	"time"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
)

// SupplierInvoice is the persisted record of one processed source
// document as delivered by the extraction pipeline. The file itself and
// the AI extraction call live upstream; this side only ever sees the
// structured result.
type SupplierInvoice struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ExternalRef    string          `gorm:"size:100;index" json:"external_ref"`
	SupplierName   string          `gorm:"size:255;not null" json:"supplier_name"`
	DocumentNumber string          `gorm:"size:100" json:"document_number"`
	IssueDate      *time.Time      `json:"issue_date"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_value"`
	Status         InvoiceStatus   `gorm:"size:20;not null;default:'Pending'" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Items []SupplierInvoiceItem `gorm:"foreignKey:SupplierInvoiceId" json:"items"`
}

// SupplierInvoiceItem is one extracted line item. RawMaterialId is set
// when the matching engine resolved the description; MatchStrategy
// records which fallback did it, for review and for tuning the
// heuristics.
type SupplierInvoiceItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SupplierInvoiceId int             `gorm:"index;not null" json:"supplier_invoice_id"`
	Description       string          `gorm:"size:500;not null" json:"description"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit              string          `gorm:"size:20" json:"unit"`
	UnitValue         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_value"`
	RawMaterialId     *int            `gorm:"index" json:"raw_material_id"`
	MatchStrategy     MatchStrategy   `gorm:"size:20;not null;default:'None'" json:"match_strategy"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSupplierInvoiceItem struct {
	Description string          `json:"description" binding:"required"`
	Qty         decimal.Decimal `json:"qty"`
	Unit        string          `json:"unit" binding:"required"`
	UnitValue   decimal.Decimal `json:"unit_value" binding:"required"`
}

type NewSupplierInvoice struct {
	ExternalRef    string                   `json:"external_ref"`
	SupplierName   string                   `json:"supplier_name" binding:"required"`
	DocumentNumber string                   `json:"document_number"`
	IssueDate      *time.Time               `json:"issue_date"`
	TotalValue     decimal.Decimal          `json:"total_value"`
	Items          []NewSupplierInvoiceItem `json:"items" binding:"required,min=1,dive"`
}

func GetSupplierInvoice(ctx context.Context, id int) (*SupplierInvoice, error) {
	return utils.FetchModel[SupplierInvoice](ctx, id, "Items")
}

func GetAllSupplierInvoices(ctx context.Context) ([]*SupplierInvoice, error) {
	return utils.FetchAllModels[SupplierInvoice](ctx, "Items")
}

func SetSupplierInvoiceStatus(ctx context.Context, id int, status InvoiceStatus) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&SupplierInvoice{ID: id}).Update("Status", status).Error
}
