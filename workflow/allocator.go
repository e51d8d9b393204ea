package workflow

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchAllocation is one proposed depletion: take Qty units from BatchId.
type BatchAllocation struct {
	BatchId int             `json:"batch_id"`
	Qty     decimal.Decimal `json:"qty"`
}

// SelectBatches proposes depletions under FEFO: earliest expiry first, ties
// broken by ascending batch id so the result is deterministic. It only
// proposes — applying the depletion is the document workflow's job.
//
// If the eligible batches cannot cover the request, it fails with a
// ShortfallError carrying the available quantity and proposes nothing.
func SelectBatches(batches []models.Batch, medicineId int, requested decimal.Decimal, now time.Time, quarantineDays int) ([]BatchAllocation, error) {
	if !requested.IsPositive() {
		return nil, &models.InvalidBatchError{MedicineId: medicineId, Reason: "requested quantity must be positive"}
	}

	eligible := make([]models.Batch, 0, len(batches))
	for _, b := range batches {
		if b.MedicineId == medicineId && b.IsAllocatableAt(now, quarantineDays) {
			eligible = append(eligible, b)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].ExpiryDate.Equal(eligible[j].ExpiryDate) {
			return eligible[i].ExpiryDate.Before(eligible[j].ExpiryDate)
		}
		return eligible[i].ID < eligible[j].ID
	})

	available := decimal.Zero
	for _, b := range eligible {
		available = available.Add(b.RemainingQty)
	}
	if available.LessThan(requested) {
		return nil, &models.ShortfallError{
			MedicineId: medicineId,
			Requested:  requested,
			Available:  available,
		}
	}

	allocations := make([]BatchAllocation, 0, len(eligible))
	remaining := requested
	for _, b := range eligible {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(b.RemainingQty, remaining)
		allocations = append(allocations, BatchAllocation{BatchId: b.ID, Qty: take})
		remaining = remaining.Sub(take)
	}
	return allocations, nil
}

// ValidateExplicitBatch checks a pinned batch against the same eligibility
// rules the selector uses: right medicine, Active, enough stock.
func ValidateExplicitBatch(batch *models.Batch, medicineId int, requested decimal.Decimal, now time.Time, quarantineDays int) error {
	if batch.MedicineId != medicineId {
		return &models.InvalidBatchError{
			BatchId:    batch.ID,
			MedicineId: medicineId,
			Status:     batch.StatusAt(now, quarantineDays),
			Reason:     "batch belongs to a different medicine",
		}
	}
	if status := batch.StatusAt(now, quarantineDays); status != models.BatchStatusActive {
		return &models.InvalidBatchError{
			BatchId:    batch.ID,
			MedicineId: medicineId,
			Status:     status,
			Reason:     "batch status is " + string(status),
		}
	}
	if batch.RemainingQty.LessThan(requested) {
		return &models.ShortfallError{
			MedicineId: medicineId,
			Requested:  requested,
			Available:  batch.RemainingQty,
		}
	}
	return nil
}

// AllocateForDepletionTx resolves the batches for one depleting line inside
// the posting transaction, holding row locks on every candidate. With
// explicitBatchId > 0 selection is bypassed but eligibility is not.
func AllocateForDepletionTx(tx *gorm.DB, medicineId int, requested decimal.Decimal, explicitBatchId int, now time.Time) ([]BatchAllocation, error) {
	quarantineDays := config.BatchQuarantineDays()

	if explicitBatchId > 0 {
		batch, err := models.FetchBatchForUpdateTx(tx, explicitBatchId)
		if err != nil {
			return nil, err
		}
		if err := ValidateExplicitBatch(batch, medicineId, requested, now, quarantineDays); err != nil {
			return nil, err
		}
		return []BatchAllocation{{BatchId: batch.ID, Qty: requested}}, nil
	}

	batches, err := models.EligibleBatchesForUpdateTx(tx, medicineId, now)
	if err != nil {
		return nil, err
	}
	return SelectBatches(batches, medicineId, requested, now, quarantineDays)
}
