package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/sirupsen/logrus"
)

// ExpirySweepResult reports what one sweep found and, when write-off is
// enabled, which adjustment document it posted.
type ExpirySweepResult struct {
	ExpiredBatches []models.Batch          `json:"expired_batches"`
	ExpiringSoon   []models.BatchSnapshot  `json:"expiring_soon"`
	WriteOff       *models.StockAdjustment `json:"write_off,omitempty"`
}

// RunExpirySweep finds expired batches still holding stock. With automatic
// write-off enabled it posts one Expiry adjustment clearing them; otherwise it
// only reports, leaving disposal to a manual adjustment.
func RunExpirySweep(ctx context.Context, logger *logrus.Logger, accountId int) (*ExpirySweepResult, error) {
	now := time.Now().UTC()
	db := config.GetDB()

	var expired []models.Batch
	if err := db.WithContext(ctx).
		Where("is_deleted = ? AND expiry_date <= ? AND remaining_qty > 0", false, now).
		Order("expiry_date ASC, id ASC").
		Find(&expired).Error; err != nil {
		return nil, err
	}

	expiringSoon, err := models.GetExpiringSoonBatches(ctx)
	if err != nil {
		return nil, err
	}

	result := &ExpirySweepResult{ExpiredBatches: expired, ExpiringSoon: expiringSoon}
	logger.WithFields(logrus.Fields{
		"expired":       len(expired),
		"expiring_soon": len(expiringSoon),
	}).Info("expiry sweep")

	if !config.AutoWriteOffExpired() || len(expired) == 0 {
		return result, nil
	}

	details := make([]models.NewStockAdjustmentDetail, 0, len(expired))
	for _, batch := range expired {
		batchId := batch.ID
		details = append(details, models.NewStockAdjustmentDetail{
			MedicineId:   batch.MedicineId,
			BatchId:      &batchId,
			Qty:          batch.RemainingQty.Neg(),
			MovementType: models.MovementTypeExpiry,
			UnitCost:     batch.UnitCost,
		})
	}

	doc, err := models.CreateStockAdjustment(ctx, &models.NewStockAdjustment{
		AccountId:      accountId,
		AdjustmentDate: now,
		Reason:         "expired stock write-off",
		Details:        details,
	})
	if err != nil {
		return nil, err
	}
	approved, err := ApproveStockAdjustment(ctx, logger, doc.ID)
	if err != nil {
		// A batch emptied between the scan and the posting; the draft stays
		// for manual review.
		config.LogError(logger, "workflow", "RunExpirySweep", "write-off approval failed", map[string]interface{}{"adjustment_id": doc.ID}, err)
		result.WriteOff = doc
		return result, nil
	}
	result.WriteOff = approved
	return result, nil
}
