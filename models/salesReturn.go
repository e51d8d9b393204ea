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

// SalesReturn takes sold units back from a customer into the batch they came
// from. Approving it replenishes the named batches and posts the refund as an
// expense.
type SalesReturn struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	Number     string              `gorm:"size:50;uniqueIndex;not null" json:"number"`
	CustomerId int                 `gorm:"index" json:"customer_id"`
	AccountId  int                 `gorm:"index;not null" json:"account_id" binding:"required"`
	ReturnDate time.Time           `gorm:"not null" json:"return_date"`
	Status     DocumentStatus      `gorm:"type:enum('Draft','Approved','Cancelled');not null;default:'Draft'" json:"status"`
	Note       string              `gorm:"size:255" json:"note"`
	Details    []SalesReturnDetail `gorm:"foreignKey:ReturnId" json:"details"`
	DocumentAudit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type SalesReturnDetail struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ReturnId   int             `gorm:"index;not null" json:"return_id"`
	LineNo     int             `gorm:"not null" json:"line_no"`
	MedicineId int             `gorm:"index;not null" json:"medicine_id" binding:"required"`
	BatchId    int             `gorm:"index;not null" json:"batch_id" binding:"required"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (d *SalesReturn) GetId() int                      { return d.ID }
func (d *SalesReturn) GetStatus() DocumentStatus       { return d.Status }
func (d *SalesReturn) GetReferenceType() ReferenceType { return ReferenceTypeSalesReturn }

func (d *SalesReturn) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range d.Details {
		total = total.Add(detail.Amount)
	}
	return total
}

type NewSalesReturnDetail struct {
	MedicineId int             `json:"medicine_id" binding:"required"`
	BatchId    int             `json:"batch_id" binding:"required"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price" binding:"required"`
}

type NewSalesReturn struct {
	CustomerId int                    `json:"customer_id"`
	AccountId  int                    `json:"account_id" binding:"required"`
	ReturnDate time.Time              `json:"return_date"`
	Note       string                 `json:"note"`
	Details    []NewSalesReturnDetail `json:"details" binding:"required,dive"`
}

func (input *NewSalesReturn) validate(ctx context.Context) error {
	if input.CustomerId > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
			return errors.New("customer not found")
		}
	}
	if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
		return errors.New("account not found")
	}
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return errors.New("detail qty must be positive")
		}
		if detail.UnitPrice.IsNegative() {
			return errors.New("detail unit price cannot be negative")
		}
	}
	return nil
}

func CreateSalesReturn(ctx context.Context, input *NewSalesReturn) (*SalesReturn, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	returnDate := input.ReturnDate
	if returnDate.IsZero() {
		returnDate = time.Now().UTC()
	}

	details := make([]SalesReturnDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, SalesReturnDetail{
			LineNo:     i + 1,
			MedicineId: d.MedicineId,
			BatchId:    d.BatchId,
			Qty:        d.Qty,
			UnitPrice:  d.UnitPrice,
			Amount:     LineTotal(d.Qty, d.UnitPrice),
		})
	}

	doc := SalesReturn{
		CustomerId:    input.CustomerId,
		AccountId:     input.AccountId,
		ReturnDate:    returnDate,
		Status:        DocumentStatusDraft,
		Note:          input.Note,
		Details:       details,
		DocumentAudit: DocumentAudit{CreatedBy: userId},
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumberTx(tx, ReferenceTypeSalesReturn)
		if err != nil {
			return err
		}
		doc.Number = number
		return tx.Create(&doc).Error
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func DeleteSalesReturn(ctx context.Context, id int) error {
	doc, err := utils.FetchModel[SalesReturn](ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != DocumentStatusDraft {
		return &IllegalTransitionError{DocumentId: id, From: doc.Status, Action: "delete"}
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("return_id = ?", id).Delete(&SalesReturnDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&SalesReturn{}, id).Error
	})
}

func GetSalesReturn(ctx context.Context, id int) (*SalesReturn, error) {
	return utils.FetchModel[SalesReturn](ctx, id, "Details")
}
