package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApplyDepletionTx consumes allocated stock: one conditional batch decrement
// plus one negative ledger row per allocation, in allocation order so ledger
// rows replay deterministically.
func ApplyDepletionTx(tx *gorm.DB, medicineId int, allocations []BatchAllocation, movementType models.MovementType, referenceType models.ReferenceType, referenceId int, lineNo int, note string, movementDate time.Time) error {
	for _, alloc := range allocations {
		if err := models.DecrementBatchQtyTx(tx, alloc.BatchId, alloc.Qty); err != nil {
			return err
		}
		batchId := alloc.BatchId
		movement := &models.StockMovement{
			MedicineId:    medicineId,
			BatchId:       &batchId,
			Qty:           alloc.Qty.Neg(),
			MovementType:  movementType,
			ReferenceType: referenceType,
			ReferenceId:   referenceId,
			LineNo:        lineNo,
			Note:          note,
			MovementDate:  movementDate,
		}
		if err := models.AppendStockMovementTx(tx, movement); err != nil {
			return err
		}
	}
	return nil
}

// ApplyReplenishmentTx records stock received into one batch with a positive
// ledger row. The lot total grows with the receipt, so repeat purchases of the
// same (medicine, lot) accumulate.
func ApplyReplenishmentTx(tx *gorm.DB, medicineId int, batchId int, qty decimal.Decimal, movementType models.MovementType, referenceType models.ReferenceType, referenceId int, lineNo int, note string, movementDate time.Time) error {
	if err := models.ReceiveBatchQtyTx(tx, batchId, qty); err != nil {
		return err
	}
	movement := &models.StockMovement{
		MedicineId:    medicineId,
		BatchId:       &batchId,
		Qty:           qty,
		MovementType:  movementType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		LineNo:        lineNo,
		Note:          note,
		MovementDate:  movementDate,
	}
	return models.AppendStockMovementTx(tx, movement)
}

// ReverseStockMovementsTx appends one compensating movement per original row
// for the reference and restores the batch projections, never touching the
// originals except to mark the reversal linkage.
//
// Idempotent: when every original row is already linked to a reversal, the
// call fails with ReversalConflictError and writes nothing.
func ReverseStockMovementsTx(tx *gorm.DB, referenceType models.ReferenceType, referenceId int, reason string) ([]*models.StockMovement, error) {
	if tx == nil {
		return nil, fmt.Errorf("reverse stock: tx is nil")
	}

	all, err := models.StockMovementsForReferenceTx(tx, referenceType, referenceId)
	if err != nil {
		return nil, err
	}

	originals := make([]models.StockMovement, 0, len(all))
	for _, m := range all {
		if !m.IsReversal && m.ReversedByMovementId == nil {
			originals = append(originals, m)
		}
	}
	if len(originals) == 0 {
		if len(all) > 0 {
			return nil, &models.ReversalConflictError{ReferenceType: referenceType, ReferenceId: referenceId}
		}
		return []*models.StockMovement{}, nil
	}

	now := time.Now().UTC()
	reasonCopy := reason

	reversals := make([]*models.StockMovement, 0, len(originals))
	for _, o := range originals {
		// Restore the batch projection with the inverse mutation: a depletion
		// reversal puts the quantity back within the received total, a receipt
		// reversal shrinks the total again. A receipt reversal fails here when
		// the received stock was already consumed; that aborts the whole
		// cancellation, which is the intended outcome.
		if o.BatchId != nil {
			if o.Qty.IsNegative() {
				if err := models.IncrementBatchQtyTx(tx, *o.BatchId, o.Qty.Neg()); err != nil {
					return nil, err
				}
			} else {
				if err := models.UnreceiveBatchQtyTx(tx, *o.BatchId, o.Qty); err != nil {
					return nil, err
				}
			}
		}

		originalId := o.ID
		rev := &models.StockMovement{
			MedicineId:         o.MedicineId,
			BatchId:            o.BatchId,
			Qty:                o.Qty.Neg(),
			MovementType:       o.MovementType,
			ReferenceType:      o.ReferenceType,
			ReferenceId:        o.ReferenceId,
			LineNo:             o.LineNo,
			Note:               "REV: " + o.Note,
			MovementDate:       o.MovementDate,
			IsReversal:         true,
			ReversesMovementId: &originalId,
			ReversalReason:     &reasonCopy,
		}
		if err := tx.Create(rev).Error; err != nil {
			return nil, err
		}

		// Mark original reversed (metadata-only update).
		if err := tx.Model(&models.StockMovement{}).
			Where("id = ?", o.ID).
			Updates(map[string]interface{}{
				"reversed_by_movement_id": rev.ID,
				"reversal_reason":         &reasonCopy,
				"reversed_at":             &now,
			}).Error; err != nil {
			return nil, err
		}

		reversals = append(reversals, rev)
	}

	return reversals, nil
}
