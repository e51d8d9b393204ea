package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostDocumentAmountTx posts one financial ledger row for a document's
// monetary effect. The amount is absolute; the transaction type decides the
// sign (income +, expense -). The cached account balance moves under the same
// transaction.
func PostDocumentAmountTx(tx *gorm.DB, accountId int, amount decimal.Decimal, transactionType models.TransactionType, referenceType models.ReferenceType, referenceId int, description string, transactionDate time.Time) (*models.FinancialTransaction, error) {
	transaction := &models.FinancialTransaction{
		AccountId:       accountId,
		Amount:          models.SignedAmount(transactionType, amount),
		TransactionType: transactionType,
		ReferenceType:   referenceType,
		ReferenceId:     referenceId,
		Description:     description,
		TransactionDate: transactionDate,
	}
	if err := models.PostFinancialTransactionTx(tx, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

// ReverseFinancialTransactionsTx appends one compensating transaction per
// original row for the reference. Originals keep their transaction type for
// audit; only the amount is negated. The account balance cache moves back
// through the same posting path.
//
// Idempotent: a second reversal for the same reference fails with
// ReversalConflictError and writes nothing.
func ReverseFinancialTransactionsTx(tx *gorm.DB, referenceType models.ReferenceType, referenceId int, reason string) ([]*models.FinancialTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("reverse financial: tx is nil")
	}

	all, err := models.FinancialTransactionsForReferenceTx(tx, referenceType, referenceId)
	if err != nil {
		return nil, err
	}

	originals := make([]models.FinancialTransaction, 0, len(all))
	for _, t := range all {
		if !t.IsReversal && t.ReversedByTransactionId == nil {
			originals = append(originals, t)
		}
	}
	if len(originals) == 0 {
		if len(all) > 0 {
			return nil, &models.ReversalConflictError{ReferenceType: referenceType, ReferenceId: referenceId}
		}
		return []*models.FinancialTransaction{}, nil
	}

	now := time.Now().UTC()
	reasonCopy := reason

	reversals := make([]*models.FinancialTransaction, 0, len(originals))
	for _, o := range originals {
		originalId := o.ID
		rev := &models.FinancialTransaction{
			AccountId:             o.AccountId,
			Amount:                o.Amount.Neg(),
			TransactionType:       o.TransactionType,
			ReferenceType:         o.ReferenceType,
			ReferenceId:           o.ReferenceId,
			Description:           "Reversal: " + reasonCopy,
			TransactionDate:       o.TransactionDate,
			IsReversal:            true,
			ReversesTransactionId: &originalId,
			ReversalReason:        &reasonCopy,
		}
		if err := models.PostFinancialTransactionTx(tx, rev); err != nil {
			return nil, err
		}

		// Mark original reversed (metadata-only update).
		if err := tx.Model(&models.FinancialTransaction{}).
			Where("id = ?", o.ID).
			Updates(map[string]interface{}{
				"reversed_by_transaction_id": rev.ID,
				"reversal_reason":            &reasonCopy,
				"reversed_at":                &now,
			}).Error; err != nil {
			return nil, err
		}

		reversals = append(reversals, rev)
	}

	return reversals, nil
}

// AdjustCounterpartBalanceTx moves a supplier or customer running balance.
// These caches ride along with the financial ledger reference that caused the
// change and are restored by the inverse call on reversal.
func AdjustCounterpartBalanceTx(tx *gorm.DB, supplierId, customerId int, delta decimal.Decimal) error {
	if supplierId > 0 {
		if err := tx.Model(&models.Supplier{}).
			Where("id = ?", supplierId).
			Update("balance", gorm.Expr("balance + ?", delta)).Error; err != nil {
			return err
		}
	}
	if customerId > 0 {
		if err := tx.Model(&models.Customer{}).
			Where("id = ?", customerId).
			Update("balance", gorm.Expr("balance + ?", delta)).Error; err != nil {
			return err
		}
	}
	return nil
}
