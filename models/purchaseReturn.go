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

// PurchaseReturn sends stock from a specific batch back to the supplier.
// Approving it depletes the named batches and posts the refund as income.
type PurchaseReturn struct {
	ID         int                    `gorm:"primary_key" json:"id"`
	Number     string                 `gorm:"size:50;uniqueIndex;not null" json:"number"`
	SupplierId int                    `gorm:"index;not null" json:"supplier_id" binding:"required"`
	AccountId  int                    `gorm:"index;not null" json:"account_id" binding:"required"`
	ReturnDate time.Time              `gorm:"not null" json:"return_date"`
	Status     DocumentStatus         `gorm:"type:enum('Draft','Approved','Cancelled');not null;default:'Draft'" json:"status"`
	Note       string                 `gorm:"size:255" json:"note"`
	Details    []PurchaseReturnDetail `gorm:"foreignKey:ReturnId" json:"details"`
	DocumentAudit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseReturnDetail struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ReturnId   int             `gorm:"index;not null" json:"return_id"`
	LineNo     int             `gorm:"not null" json:"line_no"`
	MedicineId int             `gorm:"index;not null" json:"medicine_id" binding:"required"`
	BatchId    int             `gorm:"index;not null" json:"batch_id" binding:"required"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (d *PurchaseReturn) GetId() int                      { return d.ID }
func (d *PurchaseReturn) GetStatus() DocumentStatus       { return d.Status }
func (d *PurchaseReturn) GetReferenceType() ReferenceType { return ReferenceTypePurchaseReturn }

func (d *PurchaseReturn) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range d.Details {
		total = total.Add(detail.Amount)
	}
	return total
}

type NewPurchaseReturnDetail struct {
	MedicineId int             `json:"medicine_id" binding:"required"`
	BatchId    int             `json:"batch_id" binding:"required"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost" binding:"required"`
}

type NewPurchaseReturn struct {
	SupplierId int                       `json:"supplier_id" binding:"required"`
	AccountId  int                       `json:"account_id" binding:"required"`
	ReturnDate time.Time                 `json:"return_date"`
	Note       string                    `json:"note"`
	Details    []NewPurchaseReturnDetail `json:"details" binding:"required,dive"`
}

func (input *NewPurchaseReturn) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return errors.New("supplier not found")
	}
	if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
		return errors.New("account not found")
	}
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return errors.New("detail qty must be positive")
		}
		if detail.UnitCost.IsNegative() {
			return errors.New("detail unit cost cannot be negative")
		}
	}
	return nil
}

func CreatePurchaseReturn(ctx context.Context, input *NewPurchaseReturn) (*PurchaseReturn, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	returnDate := input.ReturnDate
	if returnDate.IsZero() {
		returnDate = time.Now().UTC()
	}

	details := make([]PurchaseReturnDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, PurchaseReturnDetail{
			LineNo:     i + 1,
			MedicineId: d.MedicineId,
			BatchId:    d.BatchId,
			Qty:        d.Qty,
			UnitCost:   d.UnitCost,
			Amount:     LineTotal(d.Qty, d.UnitCost),
		})
	}

	doc := PurchaseReturn{
		SupplierId:    input.SupplierId,
		AccountId:     input.AccountId,
		ReturnDate:    returnDate,
		Status:        DocumentStatusDraft,
		Note:          input.Note,
		Details:       details,
		DocumentAudit: DocumentAudit{CreatedBy: userId},
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumberTx(tx, ReferenceTypePurchaseReturn)
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

func DeletePurchaseReturn(ctx context.Context, id int) error {
	doc, err := utils.FetchModel[PurchaseReturn](ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != DocumentStatusDraft {
		return &IllegalTransitionError{DocumentId: id, From: doc.Status, Action: "delete"}
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("return_id = ?", id).Delete(&PurchaseReturnDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&PurchaseReturn{}, id).Error
	})
}

func GetPurchaseReturn(ctx context.Context, id int) (*PurchaseReturn, error) {
	return utils.FetchModel[PurchaseReturn](ctx, id, "Details")
}
