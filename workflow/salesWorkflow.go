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

// ApproveSalesInvoice posts a draft sales invoice. Each line is allocated
// against batches (earliest expiry first, or the pinned batch), then consumed
// with one negative movement per batch touched. A shortfall on any line fails
// the whole document; no partial commit.
func ApproveSalesInvoice(ctx context.Context, logger *logrus.Logger, id int) (*models.SalesInvoice, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var invoice models.SalesInvoice
	err := runPosting(ctx, logger, models.ReferenceTypeSaleInvoice, id, func(tx *gorm.DB) error {
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
			return errors.New("cannot approve a sales invoice without line items")
		}

		for _, detail := range invoice.Details {
			allocations, err := AllocateForDepletionTx(tx, detail.MedicineId, detail.Qty, detail.BatchId, now)
			if err != nil {
				return tagLineNo(err, detail.LineNo)
			}
			if err := ApplyDepletionTx(tx, detail.MedicineId, allocations,
				models.MovementTypeSale, models.ReferenceTypeSaleInvoice, invoice.ID,
				detail.LineNo, invoice.Number, invoice.InvoiceDate); err != nil {
				return err
			}
		}

		if _, err := PostDocumentAmountTx(tx, invoice.AccountId, invoice.TotalAmount(),
			models.TransactionTypeIncome, models.ReferenceTypeSaleInvoice, invoice.ID,
			invoice.Number, invoice.InvoiceDate); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, 0, invoice.CustomerId, invoice.TotalAmount()); err != nil {
			return err
		}

		return stampApprovedTx(tx, &models.SalesInvoice{}, invoice.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "ApproveSalesInvoice", "posting failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	invoice.Status = models.DocumentStatusApproved
	invoice.ApprovedBy = &userId
	invoice.ApprovedAt = &now
	return &invoice, nil
}

// CancelSalesInvoice reverses an approved sales invoice: sold quantities go
// back to the batches they came from via compensating movements.
func CancelSalesInvoice(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.SalesInvoice, error) {
	return reverseSalesInvoice(ctx, logger, id, reason, "cancel")
}

// UnapproveSalesInvoice reverses the postings and returns the document to
// Draft for editing.
func UnapproveSalesInvoice(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.SalesInvoice, error) {
	return reverseSalesInvoice(ctx, logger, id, reason, "unapprove")
}

func reverseSalesInvoice(ctx context.Context, logger *logrus.Logger, id int, reason string, action string) (*models.SalesInvoice, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var invoice models.SalesInvoice
	err := runPosting(ctx, logger, models.ReferenceTypeSaleInvoice, id, func(tx *gorm.DB) error {
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

		if _, err := ReverseStockMovementsTx(tx, models.ReferenceTypeSaleInvoice, invoice.ID, reason); err != nil {
			return err
		}
		if _, err := ReverseFinancialTransactionsTx(tx, models.ReferenceTypeSaleInvoice, invoice.ID, reason); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, 0, invoice.CustomerId, invoice.TotalAmount().Neg()); err != nil {
			return err
		}

		if action == "cancel" {
			return stampCancelledTx(tx, &models.SalesInvoice{}, invoice.ID, userId, now)
		}
		return stampDraftTx(tx, &models.SalesInvoice{}, invoice.ID)
	})
	if err != nil {
		config.LogError(logger, "workflow", "reverseSalesInvoice", action+" failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	return models.GetSalesInvoice(ctx, id)
}

// tagLineNo attaches the failing line number to allocation errors so the
// caller can point at the exact line.
func tagLineNo(err error, lineNo int) error {
	var shortfall *models.ShortfallError
	if errors.As(err, &shortfall) {
		shortfall.LineNo = lineNo
		return shortfall
	}
	var invalid *models.InvalidBatchError
	if errors.As(err, &invalid) {
		invalid.LineNo = lineNo
		return invalid
	}
	return err
}
