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

// ApproveStockAdjustment posts manual corrections, damage and expiry
// write-offs. Batch-level lines move the batch projection; lines without a
// batch adjust the medicine aggregate only. When an account is set and the
// lines carry value, the net amount posts to the financial ledger as an
// adjustment.
func ApproveStockAdjustment(ctx context.Context, logger *logrus.Logger, id int) (*models.StockAdjustment, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var doc models.StockAdjustment
	err := runPosting(ctx, logger, models.ReferenceTypeManualAdjustment, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
			First(&doc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&doc, "approve"); err != nil {
			return err
		}
		if len(doc.Details) == 0 {
			return errors.New("cannot approve a stock adjustment without line items")
		}

		for _, detail := range doc.Details {
			if detail.BatchId == nil {
				movement := &models.StockMovement{
					MedicineId:    detail.MedicineId,
					Qty:           detail.Qty,
					MovementType:  detail.MovementType,
					ReferenceType: models.ReferenceTypeManualAdjustment,
					ReferenceId:   doc.ID,
					LineNo:        detail.LineNo,
					Note:          doc.Number,
					MovementDate:  doc.AdjustmentDate,
				}
				if err := models.AppendStockMovementTx(tx, movement); err != nil {
					return tagLineNo(err, detail.LineNo)
				}
				continue
			}

			batch, err := models.FetchBatchForUpdateTx(tx, *detail.BatchId)
			if err != nil {
				return err
			}
			if batch.MedicineId != detail.MedicineId {
				return &models.InvalidBatchError{
					BatchId:    batch.ID,
					MedicineId: detail.MedicineId,
					Status:     batch.Status(),
					Reason:     "batch belongs to a different medicine",
					LineNo:     detail.LineNo,
				}
			}
			// Expired and quarantined batches remain adjustable so damage and
			// expiry write-offs can clear them; deleted batches never are.
			if batch.IsDeleted {
				return &models.InvalidBatchError{
					BatchId:    batch.ID,
					MedicineId: detail.MedicineId,
					Status:     models.BatchStatusDeleted,
					Reason:     "batch is logically deleted",
					LineNo:     detail.LineNo,
				}
			}
			if detail.Qty.IsNegative() {
				if batch.RemainingQty.LessThan(detail.Qty.Neg()) {
					return &models.ShortfallError{
						MedicineId: detail.MedicineId,
						Requested:  detail.Qty.Neg(),
						Available:  batch.RemainingQty,
						LineNo:     detail.LineNo,
					}
				}
				allocation := []BatchAllocation{{BatchId: batch.ID, Qty: detail.Qty.Neg()}}
				if err := ApplyDepletionTx(tx, detail.MedicineId, allocation,
					detail.MovementType, models.ReferenceTypeManualAdjustment, doc.ID,
					detail.LineNo, doc.Number, doc.AdjustmentDate); err != nil {
					return err
				}
			} else {
				if err := ApplyReplenishmentTx(tx, detail.MedicineId, batch.ID, detail.Qty,
					detail.MovementType, models.ReferenceTypeManualAdjustment, doc.ID,
					detail.LineNo, doc.Number, doc.AdjustmentDate); err != nil {
					return err
				}
			}
		}

		if doc.AccountId > 0 && !doc.TotalAmount().IsZero() {
			if _, err := PostDocumentAmountTx(tx, doc.AccountId, doc.TotalAmount(),
				models.TransactionTypeAdjustment, models.ReferenceTypeManualAdjustment, doc.ID,
				doc.Number, doc.AdjustmentDate); err != nil {
				return err
			}
		}

		return stampApprovedTx(tx, &models.StockAdjustment{}, doc.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "ApproveStockAdjustment", "posting failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	doc.Status = models.DocumentStatusApproved
	doc.ApprovedBy = &userId
	doc.ApprovedAt = &now
	return &doc, nil
}

// CancelStockAdjustment reverses an approved adjustment with compensating
// entries in both ledgers.
func CancelStockAdjustment(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.StockAdjustment, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var doc models.StockAdjustment
	err := runPosting(ctx, logger, models.ReferenceTypeManualAdjustment, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&doc, "cancel"); err != nil {
			return err
		}

		if _, err := ReverseStockMovementsTx(tx, models.ReferenceTypeManualAdjustment, doc.ID, reason); err != nil {
			return err
		}
		if _, err := ReverseFinancialTransactionsTx(tx, models.ReferenceTypeManualAdjustment, doc.ID, reason); err != nil {
			return err
		}

		return stampCancelledTx(tx, &models.StockAdjustment{}, doc.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "CancelStockAdjustment", "cancel failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	return models.GetStockAdjustment(ctx, id)
}
