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

// ApproveSalesReturn takes stock back from a customer into the exact batch it
// was sold from, which must still be Active. The refund posts as expense and
// the customer balance drops by the return total.
func ApproveSalesReturn(ctx context.Context, logger *logrus.Logger, id int) (*models.SalesReturn, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var ret models.SalesReturn
	err := runPosting(ctx, logger, models.ReferenceTypeSalesReturn, id, func(tx *gorm.DB) error {
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
			return errors.New("cannot approve a sales return without line items")
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
			if err := ApplyReplenishmentTx(tx, detail.MedicineId, batch.ID, detail.Qty,
				models.MovementTypeSalesReturn, models.ReferenceTypeSalesReturn, ret.ID,
				detail.LineNo, ret.Number, ret.ReturnDate); err != nil {
				return err
			}
		}

		if _, err := PostDocumentAmountTx(tx, ret.AccountId, ret.TotalAmount(),
			models.TransactionTypeExpense, models.ReferenceTypeSalesReturn, ret.ID,
			ret.Number, ret.ReturnDate); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, 0, ret.CustomerId, ret.TotalAmount().Neg()); err != nil {
			return err
		}

		return stampApprovedTx(tx, &models.SalesReturn{}, ret.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "ApproveSalesReturn", "posting failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	ret.Status = models.DocumentStatusApproved
	ret.ApprovedBy = &userId
	ret.ApprovedAt = &now
	return &ret, nil
}

// CancelSalesReturn reverses an approved sales return. The restocked quantity
// must still be on the batch; if it was sold on, the conditional decrement
// fails and the cancellation aborts.
func CancelSalesReturn(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.SalesReturn, error) {
	return reverseSalesReturn(ctx, logger, id, reason, "cancel")
}

// UnapproveSalesReturn reverses the postings like a cancellation but returns
// the document to Draft for editing and re-approval.
func UnapproveSalesReturn(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.SalesReturn, error) {
	return reverseSalesReturn(ctx, logger, id, reason, "unapprove")
}

func reverseSalesReturn(ctx context.Context, logger *logrus.Logger, id int, reason string, action string) (*models.SalesReturn, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var ret models.SalesReturn
	err := runPosting(ctx, logger, models.ReferenceTypeSalesReturn, id, func(tx *gorm.DB) error {
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

		if _, err := ReverseStockMovementsTx(tx, models.ReferenceTypeSalesReturn, ret.ID, reason); err != nil {
			return err
		}
		if _, err := ReverseFinancialTransactionsTx(tx, models.ReferenceTypeSalesReturn, ret.ID, reason); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, 0, ret.CustomerId, ret.TotalAmount()); err != nil {
			return err
		}

		if action == "cancel" {
			return stampCancelledTx(tx, &models.SalesReturn{}, ret.ID, userId, now)
		}
		return stampDraftTx(tx, &models.SalesReturn{}, ret.ID)
	})
	if err != nil {
		config.LogError(logger, "workflow", "reverseSalesReturn", action+" failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	return models.GetSalesReturn(ctx, id)
}
