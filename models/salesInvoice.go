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

// SalesInvoice sells medicine to a customer. Approving it allocates batches
// FEFO (or validates an explicitly chosen batch per line), depletes them and
// posts the income.
type SalesInvoice struct {
	ID          int                  `gorm:"primary_key" json:"id"`
	Number      string               `gorm:"size:50;uniqueIndex;not null" json:"number"`
	CustomerId  int                  `gorm:"index" json:"customer_id"`
	AccountId   int                  `gorm:"index;not null" json:"account_id" binding:"required"`
	InvoiceDate time.Time            `gorm:"not null" json:"invoice_date"`
	Status      DocumentStatus       `gorm:"type:enum('Draft','Approved','Cancelled');not null;default:'Draft'" json:"status"`
	Note        string               `gorm:"size:255" json:"note"`
	Details     []SalesInvoiceDetail `gorm:"foreignKey:InvoiceId" json:"details"`
	DocumentAudit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SalesInvoiceDetail: BatchId = 0 lets the allocator pick batches FEFO at
// approval; a non-zero BatchId pins the line to that batch, which must still
// pass the same eligibility checks.
type SalesInvoiceDetail struct {
	ID         int             `gorm:"primary_key" json:"id"`
	InvoiceId  int             `gorm:"index;not null" json:"invoice_id"`
	LineNo     int             `gorm:"not null" json:"line_no"`
	MedicineId int             `gorm:"index;not null" json:"medicine_id" binding:"required"`
	BatchId    int             `gorm:"index" json:"batch_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (d *SalesInvoice) GetId() int                      { return d.ID }
func (d *SalesInvoice) GetStatus() DocumentStatus       { return d.Status }
func (d *SalesInvoice) GetReferenceType() ReferenceType { return ReferenceTypeSaleInvoice }

func (d *SalesInvoice) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range d.Details {
		total = total.Add(detail.Amount)
	}
	return total
}

type NewSalesInvoiceDetail struct {
	MedicineId int             `json:"medicine_id" binding:"required"`
	BatchId    int             `json:"batch_id"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price" binding:"required"`
}

type NewSalesInvoice struct {
	CustomerId  int                     `json:"customer_id"`
	AccountId   int                     `json:"account_id" binding:"required"`
	InvoiceDate time.Time               `json:"invoice_date"`
	Note        string                  `json:"note"`
	Details     []NewSalesInvoiceDetail `json:"details" binding:"required,dive"`
}

func (input *NewSalesInvoice) validate(ctx context.Context) error {
	if input.CustomerId > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
			return errors.New("customer not found")
		}
	}
	if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
		return errors.New("account not found")
	}
	medicineIds := make([]int, 0, len(input.Details))
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return errors.New("detail qty must be positive")
		}
		if detail.UnitPrice.IsNegative() {
			return errors.New("detail unit price cannot be negative")
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

func buildSalesInvoiceDetails(input []NewSalesInvoiceDetail) []SalesInvoiceDetail {
	details := make([]SalesInvoiceDetail, 0, len(input))
	for i, d := range input {
		details = append(details, SalesInvoiceDetail{
			LineNo:     i + 1,
			MedicineId: d.MedicineId,
			BatchId:    d.BatchId,
			Qty:        d.Qty,
			UnitPrice:  d.UnitPrice,
			Amount:     LineTotal(d.Qty, d.UnitPrice),
		})
	}
	return details
}

func CreateSalesInvoice(ctx context.Context, input *NewSalesInvoice) (*SalesInvoice, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}

	invoice := SalesInvoice{
		CustomerId:    input.CustomerId,
		AccountId:     input.AccountId,
		InvoiceDate:   invoiceDate,
		Status:        DocumentStatusDraft,
		Note:          input.Note,
		Details:       buildSalesInvoiceDetails(input.Details),
		DocumentAudit: DocumentAudit{CreatedBy: userId},
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumberTx(tx, ReferenceTypeSaleInvoice)
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

func UpdateSalesInvoice(ctx context.Context, id int, input *NewSalesInvoice) (*SalesInvoice, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	invoice, err := utils.FetchModel[SalesInvoice](ctx, id, "Details")
	if err != nil {
		return nil, err
	}
	if invoice.Status != DocumentStatusDraft {
		return nil, &IllegalTransitionError{DocumentId: id, From: invoice.Status, Action: "edit"}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&SalesInvoiceDetail{}).Error; err != nil {
			return err
		}
		details := buildSalesInvoiceDetails(input.Details)
		for i := range details {
			details[i].InvoiceId = id
		}
		if len(details) > 0 {
			if err := tx.Create(&details).Error; err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"customer_id":  input.CustomerId,
			"account_id":   input.AccountId,
			"invoice_date": input.InvoiceDate,
			"note":         input.Note,
		}
		if input.InvoiceDate.IsZero() {
			delete(updates, "invoice_date")
		}
		return tx.Model(&SalesInvoice{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[SalesInvoice](ctx, id, "Details")
}

func DeleteSalesInvoice(ctx context.Context, id int) error {
	invoice, err := utils.FetchModel[SalesInvoice](ctx, id)
	if err != nil {
		return err
	}
	if invoice.Status != DocumentStatusDraft {
		return &IllegalTransitionError{DocumentId: id, From: invoice.Status, Action: "delete"}
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&SalesInvoiceDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&SalesInvoice{}, id).Error
	})
}

func GetSalesInvoice(ctx context.Context, id int) (*SalesInvoice, error) {
	return utils.FetchModel[SalesInvoice](ctx, id, "Details")
}
