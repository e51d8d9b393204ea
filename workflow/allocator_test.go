package workflow_test

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"bitbucket.org/mmdatafocus/pharmacy_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quarantineDays = 3

func day(offset int) time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func batch(id, medicineId int, remaining int64, expiryOffset int) models.Batch {
	return models.Batch{
		ID:           id,
		MedicineId:   medicineId,
		RemainingQty: decimal.NewFromInt(remaining),
		ExpiryDate:   day(expiryOffset),
	}
}

func TestSelectBatchesEarliestExpiryFirst(t *testing.T) {
	now := day(0)
	batches := []models.Batch{
		batch(2, 1, 10, 90),
		batch(1, 1, 5, 30),
	}

	allocations, err := workflow.SelectBatches(batches, 1, decimal.NewFromInt(8), now, quarantineDays)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	assert.Equal(t, 1, allocations[0].BatchId)
	assert.True(t, allocations[0].Qty.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 2, allocations[1].BatchId)
	assert.True(t, allocations[1].Qty.Equal(decimal.NewFromInt(3)))
}

func TestSelectBatchesTieBreaksOnId(t *testing.T) {
	now := day(0)
	batches := []models.Batch{
		batch(7, 1, 4, 60),
		batch(3, 1, 4, 60),
	}

	allocations, err := workflow.SelectBatches(batches, 1, decimal.NewFromInt(6), now, quarantineDays)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, 3, allocations[0].BatchId)
	assert.Equal(t, 7, allocations[1].BatchId)
}

func TestSelectBatchesSingleBatchCoversRequest(t *testing.T) {
	now := day(0)
	batches := []models.Batch{
		batch(1, 1, 20, 30),
		batch(2, 1, 20, 60),
	}

	allocations, err := workflow.SelectBatches(batches, 1, decimal.NewFromInt(20), now, quarantineDays)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 1, allocations[0].BatchId)
	assert.True(t, allocations[0].Qty.Equal(decimal.NewFromInt(20)))
}

func TestSelectBatchesShortfallReportsAvailable(t *testing.T) {
	now := day(0)
	batches := []models.Batch{
		batch(1, 1, 5, 30),
		batch(2, 1, 2, 60),
	}

	allocations, err := workflow.SelectBatches(batches, 1, decimal.NewFromInt(10), now, quarantineDays)
	assert.Nil(t, allocations)

	var shortfall *models.ShortfallError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, 1, shortfall.MedicineId)
	assert.True(t, shortfall.Requested.Equal(decimal.NewFromInt(10)))
	assert.True(t, shortfall.Available.Equal(decimal.NewFromInt(7)))
}

func TestSelectBatchesExcludesIneligible(t *testing.T) {
	now := day(0)
	expired := batch(1, 1, 50, -1)
	quarantined := batch(2, 1, 50, 2)
	deleted := batch(3, 1, 50, 90)
	deleted.IsDeleted = true
	empty := batch(4, 1, 0, 90)
	otherMedicine := batch(5, 2, 50, 90)
	good := batch(6, 1, 5, 90)

	batches := []models.Batch{expired, quarantined, deleted, empty, otherMedicine, good}

	allocations, err := workflow.SelectBatches(batches, 1, decimal.NewFromInt(5), now, quarantineDays)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 6, allocations[0].BatchId)

	// Ineligible stock must not count towards availability either.
	_, err = workflow.SelectBatches(batches, 1, decimal.NewFromInt(6), now, quarantineDays)
	var shortfall *models.ShortfallError
	require.True(t, errors.As(err, &shortfall))
	assert.True(t, shortfall.Available.Equal(decimal.NewFromInt(5)))
}

func TestSelectBatchesQuarantineBoundary(t *testing.T) {
	now := day(0)
	// Expiry exactly quarantineDays out is quarantined; one day later is not.
	onBoundary := batch(1, 1, 10, quarantineDays)
	justOutside := batch(2, 1, 10, quarantineDays+1)

	allocations, err := workflow.SelectBatches([]models.Batch{onBoundary, justOutside}, 1, decimal.NewFromInt(10), now, quarantineDays)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 2, allocations[0].BatchId)
}

func TestSelectBatchesRejectsNonPositiveRequest(t *testing.T) {
	now := day(0)
	batches := []models.Batch{batch(1, 1, 10, 90)}

	_, err := workflow.SelectBatches(batches, 1, decimal.Zero, now, quarantineDays)
	var invalid *models.InvalidBatchError
	assert.True(t, errors.As(err, &invalid))

	_, err = workflow.SelectBatches(batches, 1, decimal.NewFromInt(-3), now, quarantineDays)
	assert.True(t, errors.As(err, &invalid))
}

func TestSelectBatchesDeterministic(t *testing.T) {
	now := day(0)
	batches := []models.Batch{
		batch(4, 1, 3, 45),
		batch(2, 1, 8, 15),
		batch(9, 1, 6, 15),
		batch(1, 1, 2, 80),
	}

	first, err := workflow.SelectBatches(batches, 1, decimal.NewFromInt(15), now, quarantineDays)
	require.NoError(t, err)

	// Same inputs in a different order must produce the identical plan.
	shuffled := []models.Batch{batches[3], batches[0], batches[2], batches[1]}
	second, err := workflow.SelectBatches(shuffled, 1, decimal.NewFromInt(15), now, quarantineDays)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].BatchId, second[i].BatchId)
		assert.True(t, first[i].Qty.Equal(second[i].Qty))
	}
	assert.Equal(t, 2, first[0].BatchId)
	assert.Equal(t, 9, first[1].BatchId)
	assert.Equal(t, 4, first[2].BatchId)
}

func TestValidateExplicitBatch(t *testing.T) {
	now := day(0)

	good := batch(1, 1, 10, 90)
	require.NoError(t, workflow.ValidateExplicitBatch(&good, 1, decimal.NewFromInt(10), now, quarantineDays))

	var invalid *models.InvalidBatchError
	wrongMedicine := batch(2, 2, 10, 90)
	err := workflow.ValidateExplicitBatch(&wrongMedicine, 1, decimal.NewFromInt(1), now, quarantineDays)
	require.True(t, errors.As(err, &invalid))

	expired := batch(3, 1, 10, -5)
	err = workflow.ValidateExplicitBatch(&expired, 1, decimal.NewFromInt(1), now, quarantineDays)
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.BatchStatusExpired, invalid.Status)

	quarantined := batch(4, 1, 10, 1)
	err = workflow.ValidateExplicitBatch(&quarantined, 1, decimal.NewFromInt(1), now, quarantineDays)
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.BatchStatusQuarantine, invalid.Status)

	short := batch(5, 1, 3, 90)
	err = workflow.ValidateExplicitBatch(&short, 1, decimal.NewFromInt(4), now, quarantineDays)
	var shortfall *models.ShortfallError
	require.True(t, errors.As(err, &shortfall))
	assert.True(t, shortfall.Available.Equal(decimal.NewFromInt(3)))
}
