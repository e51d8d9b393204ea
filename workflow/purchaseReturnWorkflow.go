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

// ApprovePurchaseReturn sends stock back to a supplier. Lines pin their batch,
// which must be Active and hold the returned quantity. The refund posts as
// income and the supplier balance drops by the return total.
func ApprovePurchaseReturn(ctx context.Context, logger *logrus.Logger, id int) (*models.PurchaseReturn, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var ret models.PurchaseReturn
	err := runPosting(ctx, logger, models.ReferenceTypePurchaseReturn, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
			First(&ret, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&ret, "approve"); err != nil {
			return err
		}
		if len(ret.Details) == 0 {
			return errors.New("cannot approve a purchase return without line items")
		}

		for _, detail := range ret.Details {
			batch, err := models.FetchBatchForUpdateTx(tx, detail.BatchId)
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
			if status := batch.StatusAt(now, config.BatchQuarantineDays()); status != models.BatchStatusActive {
				return &models.InvalidBatchError{
					BatchId:    batch.ID,
					MedicineId: detail.MedicineId,
					Status:     status,
					Reason:     "batch is not active",
					LineNo:     detail.LineNo,
				}
			}
			if batch.RemainingQty.LessThan(detail.Qty) {
				return &models.ShortfallError{
					MedicineId: detail.MedicineId,
					Requested:  detail.Qty,
					Available:  batch.RemainingQty,
					LineNo:     detail.LineNo,
				}
			}
			allocation := []BatchAllocation{{BatchId: batch.ID, Qty: detail.Qty}}
			if err := ApplyDepletionTx(tx, detail.MedicineId, allocation,
				models.MovementTypePurchaseReturn, models.ReferenceTypePurchaseReturn, ret.ID,
				detail.LineNo, ret.Number, ret.ReturnDate); err != nil {
				return err
			}
		}

		if _, err := PostDocumentAmountTx(tx, ret.AccountId, ret.TotalAmount(),
			models.TransactionTypeIncome, models.ReferenceTypePurchaseReturn, ret.ID,
			ret.Number, ret.ReturnDate); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, ret.SupplierId, 0, ret.TotalAmount().Neg()); err != nil {
			return err
		}

		return stampApprovedTx(tx, &models.PurchaseReturn{}, ret.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "ApprovePurchaseReturn", "posting failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	ret.Status = models.DocumentStatusApproved
	ret.ApprovedBy = &userId
	ret.ApprovedAt = &now
	return &ret, nil
}

// CancelPurchaseReturn reverses an approved purchase return, putting the
// returned quantities back on their batches.
func CancelPurchaseReturn(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.PurchaseReturn, error) {
	return reversePurchaseReturn(ctx, logger, id, reason, "cancel")
}

// UnapprovePurchaseReturn reverses the postings like a cancellation but
// returns the document to Draft for editing and re-approval.
func UnapprovePurchaseReturn(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.PurchaseReturn, error) {
	return reversePurchaseReturn(ctx, logger, id, reason, "unapprove")
}

func reversePurchaseReturn(ctx context.Context, logger *logrus.Logger, id int, reason string, action string) (*models.PurchaseReturn, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var ret models.PurchaseReturn
	err := runPosting(ctx, logger, models.ReferenceTypePurchaseReturn, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details").
			First(&ret, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&ret, action); err != nil {
			return err
		}

		if _, err := ReverseStockMovementsTx(tx, models.ReferenceTypePurchaseReturn, ret.ID, reason); err != nil {
			return err
		}
		if _, err := ReverseFinancialTransactionsTx(tx, models.ReferenceTypePurchaseReturn, ret.ID, reason); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, ret.SupplierId, 0, ret.TotalAmount()); err != nil {
			return err
		}

		if action == "cancel" {
			return stampCancelledTx(tx, &models.PurchaseReturn{}, ret.ID, userId, now)
		}
		return stampDraftTx(tx, &models.PurchaseReturn{}, ret.ID)
	})
	if err != nil {
		config.LogError(logger, "workflow", "reversePurchaseReturn", action+" failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	return models.GetPurchaseReturn(ctx, id)
}
