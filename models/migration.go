package models

import (
	"log"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Account{},
		&Medicine{}, &MedicineCategory{},
		&Supplier{}, &Customer{}, &User{},
		&Batch{},
		&StockMovement{}, &FinancialTransaction{},
		&PurchaseInvoice{}, &PurchaseInvoiceDetail{},
		&SalesInvoice{}, &SalesInvoiceDetail{},
		&PurchaseReturn{}, &PurchaseReturnDetail{},
		&SalesReturn{}, &SalesReturnDetail{},
		&StockAdjustment{}, &StockAdjustmentDetail{},
		&Payment{},
		&DocumentNumberSeries{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
