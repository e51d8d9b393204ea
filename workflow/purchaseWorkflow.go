package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApprovePurchaseInvoice posts a draft purchase invoice: one batch created or
// replenished per line, one positive stock movement per line, one expense in
// the financial ledger, supplier balance up by the invoice total. All inside a
// single transaction; any failure leaves the document Draft with no ledger
// rows.
func ApprovePurchaseInvoice(ctx context.Context, logger *logrus.Logger, id int) (*models.PurchaseInvoice, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var invoice models.PurchaseInvoice
	err := runPosting(ctx, logger, models.ReferenceTypePurchaseInvoice, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
			First(&invoice, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&invoice, "approve"); err != nil {
			return err
		}
		if len(invoice.Details) == 0 {
			return errors.New("cannot approve a purchase invoice without line items")
		}

		for _, detail := range invoice.Details {
			batch, err := models.FindBatchByLotTx(tx, detail.MedicineId, detail.LotNumber)
			if err != nil {
				return err
			}
			if batch == nil {
				// Quantities start at zero; the replenishment below records
				// the receipt on both total and remaining.
				batch = &models.Batch{
					MedicineId:   detail.MedicineId,
					LotNumber:    detail.LotNumber,
					Barcode:      detail.Barcode,
					UnitCost:     detail.UnitCost,
					SalePrice:    detail.SalePrice,
					ExpiryDate:   detail.ExpiryDate,
					ReceivedDate: invoice.InvoiceDate,
				}
				if err := models.CreateBatchTx(tx, batch); err != nil {
					return err
				}
			}
			if err := ApplyReplenishmentTx(tx, detail.MedicineId, batch.ID, detail.Qty,
				models.MovementTypePurchase, models.ReferenceTypePurchaseInvoice, invoice.ID,
				detail.LineNo, invoice.Number, invoice.InvoiceDate); err != nil {
				return err
			}
		}

		if _, err := PostDocumentAmountTx(tx, invoice.AccountId, invoice.TotalAmount(),
			models.TransactionTypeExpense, models.ReferenceTypePurchaseInvoice, invoice.ID,
			invoice.Number, invoice.InvoiceDate); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, invoice.SupplierId, 0, invoice.TotalAmount()); err != nil {
			return err
		}

		return stampApprovedTx(tx, &models.PurchaseInvoice{}, invoice.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "ApprovePurchaseInvoice", "posting failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	invoice.Status = models.DocumentStatusApproved
	invoice.ApprovedBy = &userId
	invoice.ApprovedAt = &now
	return &invoice, nil
}

// CancelPurchaseInvoice reverses an approved purchase invoice with
// compensating entries. It fails with ConflictError when the received stock
// was already consumed, leaving the document Approved.
func CancelPurchaseInvoice(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.PurchaseInvoice, error) {
	return reversePurchaseInvoice(ctx, logger, id, reason, "cancel")
}

// UnapprovePurchaseInvoice reverses the postings like a cancellation but
// returns the document to Draft for editing and re-approval.
func UnapprovePurchaseInvoice(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.PurchaseInvoice, error) {
	return reversePurchaseInvoice(ctx, logger, id, reason, "unapprove")
}

func reversePurchaseInvoice(ctx context.Context, logger *logrus.Logger, id int, reason string, action string) (*models.PurchaseInvoice, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var invoice models.PurchaseInvoice
	err := runPosting(ctx, logger, models.ReferenceTypePurchaseInvoice, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details").
			First(&invoice, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&invoice, action); err != nil {
			return err
		}

		if _, err := ReverseStockMovementsTx(tx, models.ReferenceTypePurchaseInvoice, invoice.ID, reason); err != nil {
			return err
		}
		if _, err := ReverseFinancialTransactionsTx(tx, models.ReferenceTypePurchaseInvoice, invoice.ID, reason); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, invoice.SupplierId, 0, invoice.TotalAmount().Neg()); err != nil {
			return err
		}

		if action == "cancel" {
			return stampCancelledTx(tx, &models.PurchaseInvoice{}, invoice.ID, userId, now)
		}
		return stampDraftTx(tx, &models.PurchaseInvoice{}, invoice.ID)
	})
	if err != nil {
		config.LogError(logger, "workflow", "reversePurchaseInvoice", action+" failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	return models.GetPurchaseInvoice(ctx, id)
}
