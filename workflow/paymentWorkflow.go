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

// Payments share one table across both kinds, so the advisory lock uses a
// dedicated namespace instead of the document's reference type.
const paymentLockNamespace = models.ReferenceType("PAY")

// ApprovePayment posts a money-only document. A supplier payment (SP) is an
// expense that settles part of what we owe the supplier; a customer receipt
// (CR) is income that settles part of what the customer owes us.
func ApprovePayment(ctx context.Context, logger *logrus.Logger, id int) (*models.Payment, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var payment models.Payment
	err := runPosting(ctx, logger, paymentLockNamespace, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&payment, "approve"); err != nil {
			return err
		}

		transactionType := models.TransactionTypeExpense
		if payment.Kind == models.ReferenceTypeCustomerReceipt {
			transactionType = models.TransactionTypeIncome
		}

		if _, err := PostDocumentAmountTx(tx, payment.AccountId, payment.Amount,
			transactionType, payment.Kind, payment.ID,
			payment.Number, payment.PaymentDate); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, payment.SupplierId, payment.CustomerId, payment.Amount.Neg()); err != nil {
			return err
		}

		return stampApprovedTx(tx, &models.Payment{}, payment.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "ApprovePayment", "posting failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	payment.Status = models.DocumentStatusApproved
	payment.ApprovedBy = &userId
	payment.ApprovedAt = &now
	return &payment, nil
}

// CancelPayment reverses an approved payment with a compensating transaction
// and restores the counterpart balance.
func CancelPayment(ctx context.Context, logger *logrus.Logger, id int, reason string) (*models.Payment, error) {
	userId := postingActor(ctx)
	now := time.Now().UTC()

	var payment models.Payment
	err := runPosting(ctx, logger, paymentLockNamespace, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := ensureTransition(&payment, "cancel"); err != nil {
			return err
		}

		if _, err := ReverseFinancialTransactionsTx(tx, payment.Kind, payment.ID, reason); err != nil {
			return err
		}
		if err := AdjustCounterpartBalanceTx(tx, payment.SupplierId, payment.CustomerId, payment.Amount); err != nil {
			return err
		}

		return stampCancelledTx(tx, &models.Payment{}, payment.ID, userId, now)
	})
	if err != nil {
		config.LogError(logger, "workflow", "CancelPayment", "cancel failed", map[string]interface{}{"id": id}, err)
		return nil, err
	}

	return models.GetPayment(ctx, id)
}
