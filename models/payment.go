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

// Payment covers money-only documents: paying a supplier (SP) or receiving
// from a customer (CR). No stock effect; approval posts one financial
// transaction and moves the counterpart balance off the same reference.
type Payment struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Number      string          `gorm:"size:50;uniqueIndex;not null" json:"number"`
	Kind        ReferenceType   `gorm:"type:enum('PI','SI','PR','SR','ADJ','OB','SP','CR');not null" json:"kind"`
	SupplierId  int             `gorm:"index" json:"supplier_id"`
	CustomerId  int             `gorm:"index" json:"customer_id"`
	AccountId   int             `gorm:"index;not null" json:"account_id" binding:"required"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentDate time.Time       `gorm:"not null" json:"payment_date"`
	Status      DocumentStatus  `gorm:"type:enum('Draft','Approved','Cancelled');not null;default:'Draft'" json:"status"`
	Note        string          `gorm:"size:255" json:"note"`
	DocumentAudit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) GetId() int                      { return p.ID }
func (p *Payment) GetStatus() DocumentStatus       { return p.Status }
func (p *Payment) GetReferenceType() ReferenceType { return p.Kind }

type NewPayment struct {
	Kind        ReferenceType   `json:"kind" binding:"required"`
	SupplierId  int             `json:"supplier_id"`
	CustomerId  int             `json:"customer_id"`
	AccountId   int             `json:"account_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate time.Time       `json:"payment_date"`
	Note        string          `json:"note"`
}

func (input *NewPayment) validate(ctx context.Context) error {
	switch input.Kind {
	case ReferenceTypeSupplierPayment:
		if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
			return errors.New("supplier not found")
		}
	case ReferenceTypeCustomerReceipt:
		if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
			return errors.New("customer not found")
		}
	default:
		return errors.New("payment kind must be SP or CR")
	}
	if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
		return errors.New("account not found")
	}
	if !input.Amount.IsPositive() {
		return errors.New("payment amount must be positive")
	}
	return nil
}

func CreatePayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now().UTC()
	}

	payment := Payment{
		Kind:          input.Kind,
		SupplierId:    input.SupplierId,
		CustomerId:    input.CustomerId,
		AccountId:     input.AccountId,
		Amount:        input.Amount,
		PaymentDate:   paymentDate,
		Status:        DocumentStatusDraft,
		Note:          input.Note,
		DocumentAudit: DocumentAudit{CreatedBy: userId},
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumberTx(tx, input.Kind)
		if err != nil {
			return err
		}
		payment.Number = number
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	return utils.FetchModel[Payment](ctx, id)
}
