package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FinancialTransaction is one append-only financial ledger row: a signed
// monetary amount against an account, tagged with the document that caused it.
// Income is positive, expense negative, adjustments carry the caller's sign.
//
// Amounts are exact decimals. Rounding, when needed, happens once at line-item
// computation in the document workflows, never at ledger-append time.
type FinancialTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AccountId       int             `gorm:"index;not null;index:idx_ft_account_date,priority:1" json:"account_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionType TransactionType `gorm:"type:enum('Income','Expense','Adjustment');not null" json:"transaction_type"`
	ReferenceType   ReferenceType   `gorm:"type:enum('PI','SI','PR','SR','ADJ','OB','SP','CR');not null;index:idx_ft_reference,priority:1" json:"reference_type"`
	ReferenceId     int             `gorm:"not null;index:idx_ft_reference,priority:2" json:"reference_id"`
	Description     string          `gorm:"size:255" json:"description"`
	TransactionDate time.Time       `gorm:"index;not null;index:idx_ft_account_date,priority:2" json:"transaction_date"`

	IsReversal              bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesTransactionId   *int       `gorm:"index" json:"reverses_transaction_id"`
	ReversedByTransactionId *int       `gorm:"index" json:"reversed_by_transaction_id"`
	ReversalReason          *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt              *time.Time `gorm:"index" json:"reversed_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Ledger immutability guardrails: only reversal linkage fields may ever change.

func (t *FinancialTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: financial_transactions cannot be deleted")
}

func (t *FinancialTransaction) BeforeUpdate(tx *gorm.DB) error {
	allowed := map[string]bool{
		"ReversedByTransactionId": true,
		"ReversalReason":          true,
		"ReversedAt":              true,
		"UpdatedAt":               true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only reversal linkage fields may be updated on financial_transactions")
		}
	}
	return nil
}

// SignedAmount applies the transaction-type sign convention to an absolute
// amount: income positive, expense negative, adjustment as given.
func SignedAmount(transactionType TransactionType, amount decimal.Decimal) decimal.Decimal {
	switch transactionType {
	case TransactionTypeIncome:
		return amount.Abs()
	case TransactionTypeExpense:
		return amount.Abs().Neg()
	default:
		return amount
	}
}

// PostFinancialTransactionTx appends one ledger row and maintains the cached
// account balance under the same transaction. The cache is never the source of
// truth; ReconcileAccountBalance checks it against the ledger sum.
func PostFinancialTransactionTx(tx *gorm.DB, transaction *FinancialTransaction) error {
	if transaction.Amount.IsZero() {
		return errors.New("financial transaction amount cannot be zero")
	}
	if !transaction.TransactionType.IsValid() {
		return errors.New("invalid transaction type")
	}
	if !transaction.ReferenceType.IsValid() {
		return errors.New("invalid reference type")
	}
	if transaction.TransactionDate.IsZero() {
		transaction.TransactionDate = time.Now().UTC()
	}

	var count int64
	if err := tx.Model(&Account{}).
		Where("id = ? AND is_active = ?", transaction.AccountId, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errors.New("account not found or inactive")
	}

	if err := tx.Create(transaction).Error; err != nil {
		return err
	}

	return tx.Model(&Account{}).
		Where("id = ?", transaction.AccountId).
		Update("balance", gorm.Expr("balance + ?", transaction.Amount)).Error
}

// AccountBalanceTx computes the authoritative balance: the sum of all ledger
// amounts for the account.
func AccountBalanceTx(tx *gorm.DB, accountId int) (decimal.Decimal, error) {
	var result struct {
		Balance decimal.Decimal
	}
	err := tx.Model(&FinancialTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS balance").
		Where("account_id = ?", accountId).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Balance, nil
}

func AccountBalance(ctx context.Context, accountId int) (decimal.Decimal, error) {
	db := config.GetDB()
	return AccountBalanceTx(db.WithContext(ctx), accountId)
}

// FinancialTransactionsForReferenceTx returns all ledger rows for one document
// in insertion order.
func FinancialTransactionsForReferenceTx(tx *gorm.DB, referenceType ReferenceType, referenceId int) ([]FinancialTransaction, error) {
	var transactions []FinancialTransaction
	err := tx.Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// GetGeneralLedger returns ordered financial transactions across accounts for
// a date range (read side, for reporting collaborators).
func GetGeneralLedger(ctx context.Context, from, to time.Time, accountId *int) ([]FinancialTransaction, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).
		Where("transaction_date >= ? AND transaction_date < ?", from, to)
	if accountId != nil && *accountId > 0 {
		query = query.Where("account_id = ?", *accountId)
	}
	var transactions []FinancialTransaction
	err := query.Order("transaction_date ASC, id ASC").Find(&transactions).Error
	return transactions, err
}
