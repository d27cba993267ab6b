package models

import (
	"context"
	"errors"
	"time"

	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SellableItem is the unit actually priced and sold. It is bound to
// exactly one variant and carries its own margin, so its suggested
// price can differ from the variant default over the same cost base.
type SellableItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ProductVariantId int             `gorm:"index;not null" json:"product_variant_id" binding:"required"`
	Name             string          `gorm:"size:255;not null" json:"name" binding:"required"`
	MarginPercent    decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"margin_percent"`
	Cost             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost"`
	SuggestedPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"suggested_price"`
	IsActive         *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSellableItem struct {
	ProductVariantId int             `json:"product_variant_id" binding:"required"`
	Name             string          `json:"name" binding:"required"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
}

func (input *NewSellableItem) validate(ctx context.Context) error {
	if input.MarginPercent.IsNegative() {
		return errors.New("margin percent must not be negative")
	}
	if err := utils.ValidateResourceId[ProductVariant](ctx, input.ProductVariantId); err != nil {
		return errors.New("unknown product variant")
	}
	return nil
}

func CreateSellableItem(ctx context.Context, input *NewSellableItem) (*SellableItem, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	variant, err := utils.FetchModel[ProductVariant](ctx, input.ProductVariantId)
	if err != nil {
		return nil, err
	}
	item := SellableItem{
		ProductVariantId: input.ProductVariantId,
		Name:             input.Name,
		MarginPercent:    input.MarginPercent,
		Cost:             variant.Cost,
		SuggestedPrice:   utils.ApplyMargin(variant.Cost, input.MarginPercent),
		IsActive:         utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateSellableItem(ctx context.Context, id int, input *NewSellableItem) (*SellableItem, error) {

	item, err := utils.FetchModel[SellableItem](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(item).Updates(map[string]interface{}{
			"ProductVariantId": input.ProductVariantId,
			"Name":             input.Name,
			"MarginPercent":    input.MarginPercent,
		}).Error; err != nil {
			return err
		}
		// Margin or parent changed; rebase the caches on the parent's cost.
		return RefreshVariantCost(tx, input.ProductVariantId)
	})
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[SellableItem](ctx, id)
}

func DeleteSellableItem(ctx context.Context, id int) (*SellableItem, error) {

	item, err := utils.FetchModel[SellableItem](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func GetSellableItem(ctx context.Context, id int) (*SellableItem, error) {
	return utils.FetchModel[SellableItem](ctx, id)
}

func GetAllSellableItems(ctx context.Context) ([]*SellableItem, error) {
	return utils.FetchAllModels[SellableItem](ctx)
}
