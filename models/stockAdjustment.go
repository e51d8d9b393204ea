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

// StockAdjustment covers manual quantity corrections, damage write-offs and
// expiry write-offs. Lines carry signed quantities; a line without a batch is
// an aggregate adjustment at medicine level.
type StockAdjustment struct {
	ID             int                     `gorm:"primary_key" json:"id"`
	Number         string                  `gorm:"size:50;uniqueIndex;not null" json:"number"`
	AccountId      int                     `gorm:"index" json:"account_id"`
	AdjustmentDate time.Time               `gorm:"not null" json:"adjustment_date"`
	Status         DocumentStatus          `gorm:"type:enum('Draft','Approved','Cancelled');not null;default:'Draft'" json:"status"`
	Reason         string                  `gorm:"size:255" json:"reason"`
	Details        []StockAdjustmentDetail `gorm:"foreignKey:AdjustmentId" json:"details"`
	DocumentAudit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockAdjustmentDetail struct {
	ID           int             `gorm:"primary_key" json:"id"`
	AdjustmentId int             `gorm:"index;not null" json:"adjustment_id"`
	LineNo       int             `gorm:"not null" json:"line_no"`
	MedicineId   int             `gorm:"index;not null" json:"medicine_id" binding:"required"`
	BatchId      *int            `gorm:"index" json:"batch_id"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	MovementType MovementType    `gorm:"type:enum('Purchase','Sale','PurchaseReturn','SalesReturn','Adjustment','Damage','Expiry');not null" json:"movement_type"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

func (d *StockAdjustment) GetId() int                      { return d.ID }
func (d *StockAdjustment) GetStatus() DocumentStatus       { return d.Status }
func (d *StockAdjustment) GetReferenceType() ReferenceType { return ReferenceTypeManualAdjustment }

func (d *StockAdjustment) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range d.Details {
		total = total.Add(detail.Amount)
	}
	return total
}

type NewStockAdjustmentDetail struct {
	MedicineId   int             `json:"medicine_id" binding:"required"`
	BatchId      *int            `json:"batch_id"`
	Qty          decimal.Decimal `json:"qty" binding:"required"`
	MovementType MovementType    `json:"movement_type" binding:"required"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

type NewStockAdjustment struct {
	AccountId      int                        `json:"account_id"`
	AdjustmentDate time.Time                  `json:"adjustment_date"`
	Reason         string                     `json:"reason"`
	Details        []NewStockAdjustmentDetail `json:"details" binding:"required,dive"`
}

func (input *NewStockAdjustment) validate(ctx context.Context) error {
	if input.AccountId > 0 {
		if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
			return errors.New("account not found")
		}
	}
	for _, detail := range input.Details {
		if detail.Qty.IsZero() {
			return errors.New("detail qty cannot be zero")
		}
		switch detail.MovementType {
		case MovementTypeAdjustment, MovementTypeDamage, MovementTypeExpiry:
		default:
			return errors.New("adjustment lines must use Adjustment, Damage or Expiry movement types")
		}
		// Damage and expiry only remove stock.
		if detail.MovementType != MovementTypeAdjustment && detail.Qty.IsPositive() {
			return errors.New("damage and expiry lines must have negative qty")
		}
	}
	return nil
}

func CreateStockAdjustment(ctx context.Context, input *NewStockAdjustment) (*StockAdjustment, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	adjustmentDate := input.AdjustmentDate
	if adjustmentDate.IsZero() {
		adjustmentDate = time.Now().UTC()
	}

	details := make([]StockAdjustmentDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, StockAdjustmentDetail{
			LineNo:       i + 1,
			MedicineId:   d.MedicineId,
			BatchId:      d.BatchId,
			Qty:          d.Qty,
			MovementType: d.MovementType,
			UnitCost:     d.UnitCost,
			Amount:       LineTotal(d.Qty, d.UnitCost),
		})
	}

	doc := StockAdjustment{
		AccountId:      input.AccountId,
		AdjustmentDate: adjustmentDate,
		Status:         DocumentStatusDraft,
		Reason:         input.Reason,
		Details:        details,
		DocumentAudit:  DocumentAudit{CreatedBy: userId},
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumberTx(tx, ReferenceTypeManualAdjustment)
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

func GetStockAdjustment(ctx context.Context, id int) (*StockAdjustment, error) {
	return utils.FetchModel[StockAdjustment](ctx, id, "Details")
}
