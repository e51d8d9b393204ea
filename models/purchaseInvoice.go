package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseInvoice receives medicine batches from a supplier. Approving it
// creates (or replenishes) one batch per distinct (medicine, lot) line and
// posts the expense.
type PurchaseInvoice struct {
	ID          int                     `gorm:"primary_key" json:"id"`
	Number      string                  `gorm:"size:50;uniqueIndex;not null" json:"number"`
	SupplierId  int                     `gorm:"index;not null" json:"supplier_id" binding:"required"`
	AccountId   int                     `gorm:"index;not null" json:"account_id" binding:"required"`
	InvoiceDate time.Time               `gorm:"not null" json:"invoice_date"`
	Status      DocumentStatus          `gorm:"type:enum('Draft','Approved','Cancelled');not null;default:'Draft'" json:"status"`
	Note        string                  `gorm:"size:255" json:"note"`
	Details     []PurchaseInvoiceDetail `gorm:"foreignKey:InvoiceId" json:"details"`
	DocumentAudit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseInvoiceDetail struct {
	ID         int             `gorm:"primary_key" json:"id"`
	InvoiceId  int             `gorm:"index;not null" json:"invoice_id"`
	LineNo     int             `gorm:"not null" json:"line_no"`
	MedicineId int             `gorm:"index;not null" json:"medicine_id" binding:"required"`
	LotNumber  string          `gorm:"size:100;not null" json:"lot_number" binding:"required"`
	Barcode    string          `gorm:"size:100;not null" json:"barcode" binding:"required"`
	ExpiryDate time.Time       `gorm:"not null" json:"expiry_date" binding:"required"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	SalePrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (d *PurchaseInvoice) GetId() int                      { return d.ID }
func (d *PurchaseInvoice) GetStatus() DocumentStatus       { return d.Status }
func (d *PurchaseInvoice) GetReferenceType() ReferenceType { return ReferenceTypePurchaseInvoice }

// TotalAmount is always derived from line totals, never stored independently.
func (d *PurchaseInvoice) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range d.Details {
		total = total.Add(detail.Amount)
	}
	return total
}

type NewPurchaseInvoiceDetail struct {
	MedicineId int             `json:"medicine_id" binding:"required"`
	LotNumber  string          `json:"lot_number" binding:"required"`
	Barcode    string          `json:"barcode" binding:"required"`
	ExpiryDate time.Time       `json:"expiry_date" binding:"required"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost" binding:"required"`
	SalePrice  decimal.Decimal `json:"sale_price"`
}

type NewPurchaseInvoice struct {
	SupplierId  int                        `json:"supplier_id" binding:"required"`
	AccountId   int                        `json:"account_id" binding:"required"`
	InvoiceDate time.Time                  `json:"invoice_date"`
	Note        string                     `json:"note"`
	Details     []NewPurchaseInvoiceDetail `json:"details" binding:"required,dive"`
}

func (input *NewPurchaseInvoice) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return errors.New("supplier not found")
	}
	if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
		return errors.New("account not found")
	}
	medicineIds := make([]int, 0, len(input.Details))
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return errors.New("detail qty must be positive")
		}
		if detail.UnitCost.IsNegative() {
			return errors.New("detail unit cost cannot be negative")
		}
		medicineIds = append(medicineIds, detail.MedicineId)
	}
	if len(medicineIds) > 0 {
		if err := utils.ValidateResourcesId[Medicine](ctx, medicineIds); err != nil {
			return errors.New("medicine not found")
		}
	}
	return nil
}

func buildPurchaseInvoiceDetails(input []NewPurchaseInvoiceDetail) []PurchaseInvoiceDetail {
	details := make([]PurchaseInvoiceDetail, 0, len(input))
	for i, d := range input {
		details = append(details, PurchaseInvoiceDetail{
			LineNo:     i + 1,
			MedicineId: d.MedicineId,
			LotNumber:  d.LotNumber,
			Barcode:    d.Barcode,
			ExpiryDate: d.ExpiryDate,
			Qty:        d.Qty,
			UnitCost:   d.UnitCost,
			SalePrice:  d.SalePrice,
			Amount:     LineTotal(d.Qty, d.UnitCost),
		})
	}
	return details
}

func CreatePurchaseInvoice(ctx context.Context, input *NewPurchaseInvoice) (*PurchaseInvoice, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}

	invoice := PurchaseInvoice{
		SupplierId:    input.SupplierId,
		AccountId:     input.AccountId,
		InvoiceDate:   invoiceDate,
		Status:        DocumentStatusDraft,
		Note:          input.Note,
		Details:       buildPurchaseInvoiceDetails(input.Details),
		DocumentAudit: DocumentAudit{CreatedBy: userId},
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumberTx(tx, ReferenceTypePurchaseInvoice)
		if err != nil {
			return err
		}
		invoice.Number = number
		return tx.Create(&invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdatePurchaseInvoice replaces the draft's editable fields. Approved and
// Cancelled documents are immutable except for status transitions.
func UpdatePurchaseInvoice(ctx context.Context, id int, input *NewPurchaseInvoice) (*PurchaseInvoice, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	invoice, err := utils.FetchModel[PurchaseInvoice](ctx, id, "Details")
	if err != nil {
		return nil, err
	}
	if invoice.Status != DocumentStatusDraft {
		return nil, &IllegalTransitionError{DocumentId: id, From: invoice.Status, Action: "edit"}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&PurchaseInvoiceDetail{}).Error; err != nil {
			return err
		}
		details := buildPurchaseInvoiceDetails(input.Details)
		for i := range details {
			details[i].InvoiceId = id
		}
		if len(details) > 0 {
			if err := tx.Create(&details).Error; err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"supplier_id":  input.SupplierId,
			"account_id":   input.AccountId,
			"invoice_date": input.InvoiceDate,
			"note":         input.Note,
		}
		if input.InvoiceDate.IsZero() {
			delete(updates, "invoice_date")
		}
		if err := tx.Model(&PurchaseInvoice{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		invoice.Details = details
		return nil
	})
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[PurchaseInvoice](ctx, id, "Details")
}

// DeletePurchaseInvoice hard-deletes a draft. Non-draft documents can only be
// cancelled, never removed.
func DeletePurchaseInvoice(ctx context.Context, id int) error {
	invoice, err := utils.FetchModel[PurchaseInvoice](ctx, id)
	if err != nil {
		return err
	}
	if invoice.Status != DocumentStatusDraft {
		return &IllegalTransitionError{DocumentId: id, From: invoice.Status, Action: "delete"}
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&PurchaseInvoiceDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&PurchaseInvoice{}, id).Error
	})
}

func GetPurchaseInvoice(ctx context.Context, id int) (*PurchaseInvoice, error) {
	return utils.FetchModel[PurchaseInvoice](ctx, id, "Details")
}
