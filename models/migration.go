package models

import (
	"log"

	"github.com/precifix/costing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&RawMaterial{}, &LaborType{},
		&ProductVariant{}, &VariantMaterial{}, &VariantLabor{}, &SellableItem{},
		&SupplierInvoice{}, &SupplierInvoiceItem{},
		&CostProposal{}, &CostHistory{},
		&RecalcTask{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
