package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDocumentTransitions(t *testing.T) {
	assert.True(t, models.CanApprove(models.DocumentStatusDraft))
	assert.False(t, models.CanApprove(models.DocumentStatusApproved))
	assert.False(t, models.CanApprove(models.DocumentStatusCancelled))

	assert.True(t, models.CanCancel(models.DocumentStatusApproved))
	assert.False(t, models.CanCancel(models.DocumentStatusDraft))
	assert.False(t, models.CanCancel(models.DocumentStatusCancelled))

	assert.True(t, models.CanUnapprove(models.DocumentStatusApproved))
	assert.False(t, models.CanUnapprove(models.DocumentStatusDraft))
	assert.False(t, models.CanUnapprove(models.DocumentStatusCancelled))
}

func TestLineTotalRoundsOnce(t *testing.T) {
	qty := decimal.RequireFromString("3")
	price := decimal.RequireFromString("0.333")

	// 3 * 0.333 = 0.999 -> 1.00 after the single rounding step.
	assert.True(t, models.LineTotal(qty, price).Equal(decimal.RequireFromString("1")))

	// Signed quantities keep their sign through the rounding.
	assert.True(t, models.LineTotal(qty.Neg(), price).Equal(decimal.RequireFromString("-1")))

	qty = decimal.RequireFromString("7")
	price = decimal.RequireFromString("1.005")
	assert.True(t, models.LineTotal(qty, price).Equal(decimal.RequireFromString("7.04")))
}

func TestSignedAmountConvention(t *testing.T) {
	amount := decimal.RequireFromString("120.50")

	assert.True(t, models.SignedAmount(models.TransactionTypeIncome, amount).Equal(amount))
	assert.True(t, models.SignedAmount(models.TransactionTypeIncome, amount.Neg()).Equal(amount))
	assert.True(t, models.SignedAmount(models.TransactionTypeExpense, amount).Equal(amount.Neg()))

	// Adjustments pass through as given.
	assert.True(t, models.SignedAmount(models.TransactionTypeAdjustment, amount.Neg()).Equal(amount.Neg()))
}
