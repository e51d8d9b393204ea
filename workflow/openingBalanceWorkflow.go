package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OpeningStockLine seeds one batch with its initial quantity.
type OpeningStockLine struct {
	MedicineId int             `json:"medicine_id" binding:"required"`
	LotNumber  string          `json:"lot_number" binding:"required"`
	Barcode    string          `json:"barcode" binding:"required"`
	ExpiryDate time.Time       `json:"expiry_date" binding:"required"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	SalePrice  decimal.Decimal `json:"sale_price"`
}

// PostOpeningStock creates the batches for a go-live and writes their first
// ledger rows under the opening-balance reference. Runs once per deployment;
// duplicate lots fail with DuplicateIdentityError rather than double-seeding.
func PostOpeningStock(ctx context.Context, logger *logrus.Logger, lines []OpeningStockLine, asOf time.Time) ([]*models.Batch, error) {
	if len(lines) == 0 {
		return nil, errors.New("opening stock needs at least one line")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	db := config.GetDB()
	batches := make([]*models.Batch, 0, len(lines))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, line := range lines {
			if !line.Qty.IsPositive() {
				return errors.New("opening stock qty must be positive")
			}
			// Quantities start at zero; the replenishment below records the
			// receipt on both total and remaining.
			batch := &models.Batch{
				MedicineId:   line.MedicineId,
				LotNumber:    line.LotNumber,
				Barcode:      line.Barcode,
				UnitCost:     line.UnitCost,
				SalePrice:    line.SalePrice,
				ExpiryDate:   line.ExpiryDate,
				ReceivedDate: asOf,
			}
			if err := models.CreateBatchTx(tx, batch); err != nil {
				return err
			}
			if err := ApplyReplenishmentTx(tx, line.MedicineId, batch.ID, line.Qty,
				models.MovementTypePurchase, models.ReferenceTypeOpeningBalance, batch.ID,
				i+1, "opening stock", asOf); err != nil {
				return err
			}
			batches = append(batches, batch)
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "workflow", "PostOpeningStock", "seed failed", map[string]interface{}{"lines": len(lines)}, err)
		return nil, err
	}
	return batches, nil
}

// PostOpeningAccountBalance writes an account's starting balance as its first
// ledger row so the cached balance and the ledger agree from day one.
func PostOpeningAccountBalance(ctx context.Context, logger *logrus.Logger, accountId int, amount decimal.Decimal, asOf time.Time) (*models.FinancialTransaction, error) {
	if amount.IsZero() {
		return nil, errors.New("opening balance amount cannot be zero")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	db := config.GetDB()
	transaction := &models.FinancialTransaction{
		AccountId:       accountId,
		Amount:          amount,
		TransactionType: models.TransactionTypeAdjustment,
		ReferenceType:   models.ReferenceTypeOpeningBalance,
		ReferenceId:     accountId,
		Description:     "opening balance",
		TransactionDate: asOf,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := models.FinancialTransactionsForReferenceTx(tx, models.ReferenceTypeOpeningBalance, accountId)
		if err != nil {
			return err
		}
		for _, t := range existing {
			if t.AccountId == accountId {
				return errors.New("opening balance already posted for this account")
			}
		}
		return models.PostFinancialTransactionTx(tx, transaction)
	})
	if err != nil {
		config.LogError(logger, "workflow", "PostOpeningAccountBalance", "seed failed", map[string]interface{}{"account_id": accountId}, err)
		return nil, err
	}
	return transaction, nil
}
