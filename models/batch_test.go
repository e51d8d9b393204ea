package models_test

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBatchStatusDerivation(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	quarantineDays := 3

	b := models.Batch{ExpiryDate: now.AddDate(0, 0, 30)}
	assert.Equal(t, models.BatchStatusActive, b.StatusAt(now, quarantineDays))

	b.ExpiryDate = now.AddDate(0, 0, 2)
	assert.Equal(t, models.BatchStatusQuarantine, b.StatusAt(now, quarantineDays))

	b.ExpiryDate = now.AddDate(0, 0, -1)
	assert.Equal(t, models.BatchStatusExpired, b.StatusAt(now, quarantineDays))

	// Expiry at the exact instant counts as expired.
	b.ExpiryDate = now
	assert.Equal(t, models.BatchStatusExpired, b.StatusAt(now, quarantineDays))

	// Deleted wins over every time-derived status.
	b.IsDeleted = true
	b.ExpiryDate = now.AddDate(0, 0, 30)
	assert.Equal(t, models.BatchStatusDeleted, b.StatusAt(now, quarantineDays))
}

func TestBatchIsAllocatableAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	quarantineDays := 3

	b := models.Batch{
		ExpiryDate:   now.AddDate(0, 0, 30),
		RemainingQty: decimal.NewFromInt(1),
	}
	assert.True(t, b.IsAllocatableAt(now, quarantineDays))

	b.RemainingQty = decimal.Zero
	assert.False(t, b.IsAllocatableAt(now, quarantineDays))

	b.RemainingQty = decimal.NewFromInt(1)
	b.ExpiryDate = now.AddDate(0, 0, 1)
	assert.False(t, b.IsAllocatableAt(now, quarantineDays))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, models.IsRetryableError(&models.ConflictError{BatchId: 7}))

	assert.False(t, models.IsRetryableError(&models.ShortfallError{MedicineId: 1}))
	assert.False(t, models.IsRetryableError(&models.InvalidBatchError{BatchId: 1}))
	assert.False(t, models.IsRetryableError(&models.IllegalTransitionError{DocumentId: 1}))
	assert.False(t, models.IsRetryableError(&models.ReversalConflictError{ReferenceId: 1}))
	assert.False(t, models.IsRetryableError(errors.New("boom")))
	assert.False(t, models.IsRetryableError(nil))
}
