package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconciliationIssue is one projection that disagrees with its ledger.
type ReconciliationIssue struct {
	Kind     string          `json:"kind"`
	EntityId int             `json:"entity_id"`
	Cached   decimal.Decimal `json:"cached"`
	Ledger   decimal.Decimal `json:"ledger"`
	Delta    decimal.Decimal `json:"delta"`
}

// ReconcileBatchQuantities compares every batch's cached remaining quantity
// against the sum of its stock movements. The ledger wins; a non-empty result
// means a projection bug or manual table edits, never a ledger correction.
func ReconcileBatchQuantities(ctx context.Context, logger *logrus.Logger) ([]ReconciliationIssue, error) {
	db := config.GetDB()
	issues := []ReconciliationIssue{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batches []models.Batch
		if err := tx.Where("is_deleted = ?", false).Order("id ASC").Find(&batches).Error; err != nil {
			return err
		}
		for _, batch := range batches {
			batchId := batch.ID
			ledger, err := models.StockBalanceTx(tx, batch.MedicineId, &batchId)
			if err != nil {
				return err
			}
			if !ledger.Equal(batch.RemainingQty) {
				issues = append(issues, ReconciliationIssue{
					Kind:     "batch_remaining_qty",
					EntityId: batch.ID,
					Cached:   batch.RemainingQty,
					Ledger:   ledger,
					Delta:    batch.RemainingQty.Sub(ledger),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(issues) > 0 {
		logger.WithField("count", len(issues)).Warn("batch quantity reconciliation found drift")
	}
	return issues, nil
}

// ReconcileAccountBalances compares every account's cached balance against its
// ledger sum.
func ReconcileAccountBalances(ctx context.Context, logger *logrus.Logger) ([]ReconciliationIssue, error) {
	db := config.GetDB()
	issues := []ReconciliationIssue{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var accounts []models.Account
		if err := tx.Order("id ASC").Find(&accounts).Error; err != nil {
			return err
		}
		for _, account := range accounts {
			ledger, err := models.AccountBalanceTx(tx, account.ID)
			if err != nil {
				return err
			}
			if !ledger.Equal(account.Balance) {
				issues = append(issues, ReconciliationIssue{
					Kind:     "account_balance",
					EntityId: account.ID,
					Cached:   account.Balance,
					Ledger:   ledger,
					Delta:    account.Balance.Sub(ledger),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(issues) > 0 {
		logger.WithField("count", len(issues)).Warn("account balance reconciliation found drift")
	}
	return issues, nil
}

// RepairBatchQuantities rewrites each drifted batch projection from its ledger
// sum. Only the cache changes; ledger rows are never touched.
func RepairBatchQuantities(ctx context.Context, logger *logrus.Logger) (int, error) {
	issues, err := ReconcileBatchQuantities(ctx, logger)
	if err != nil {
		return 0, err
	}
	if len(issues) == 0 {
		return 0, nil
	}

	db := config.GetDB()
	repaired := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, issue := range issues {
			if err := tx.Model(&models.Batch{}).
				Where("id = ?", issue.EntityId).
				Update("remaining_qty", issue.Ledger).Error; err != nil {
				return err
			}
			repaired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.WithField("repaired", repaired).Info("batch quantity projections rebuilt from ledger")
	return repaired, nil
}

// RepairAccountBalances rewrites each drifted account balance from its ledger
// sum.
func RepairAccountBalances(ctx context.Context, logger *logrus.Logger) (int, error) {
	issues, err := ReconcileAccountBalances(ctx, logger)
	if err != nil {
		return 0, err
	}
	if len(issues) == 0 {
		return 0, nil
	}

	db := config.GetDB()
	repaired := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, issue := range issues {
			if err := tx.Model(&models.Account{}).
				Where("id = ?", issue.EntityId).
				Update("balance", issue.Ledger).Error; err != nil {
				return err
			}
			repaired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.WithField("repaired", repaired).Info("account balance projections rebuilt from ledger")
	return repaired, nil
}
