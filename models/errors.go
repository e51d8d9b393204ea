package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Business-rule errors carry enough structured detail for callers to render an
// actionable message. They are detected before the transaction's first write,
// so any of them aborts the whole posting with no partial ledger state.

// ShortfallError: requested quantity exceeds sellable stock across eligible
// batches. Never partially fulfilled.
type ShortfallError struct {
	MedicineId int
	Requested  decimal.Decimal
	Available  decimal.Decimal
	LineNo     int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %d: requested %s, available %s",
		e.MedicineId, e.Requested.String(), e.Available.String())
}

// InvalidBatchError: referenced batch is expired, quarantined, logically
// deleted, or belongs to a different medicine.
type InvalidBatchError struct {
	BatchId    int
	MedicineId int
	Status     BatchStatus
	Reason     string
	LineNo     int
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("batch %d is not allocatable: %s", e.BatchId, e.Reason)
}

// IllegalTransitionError: approve on non-Draft, cancel/unapprove on
// non-Approved.
type IllegalTransitionError struct {
	DocumentId int
	From       DocumentStatus
	Action     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s document %d in status %s", e.Action, e.DocumentId, e.From)
}

// DuplicateIdentityError: batch barcode or (medicine, lot number) already
// exists.
type DuplicateIdentityError struct {
	Field string
	Value string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Field, e.Value)
}

// ReversalConflictError: reversal requested for a reference that was already
// reversed. The idempotency guard returns this instead of double-posting.
type ReversalConflictError struct {
	ReferenceType ReferenceType
	ReferenceId   int
}

func (e *ReversalConflictError) Error() string {
	return fmt.Sprintf("reference %s/%d has already been reversed", e.ReferenceType, e.ReferenceId)
}

// ConflictError: a concurrent writer consumed the stock between allocation and
// the conditional decrement. Safe to retry, unlike business-rule errors.
type ConflictError struct {
	BatchId int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update on batch %d, retry the operation", e.BatchId)
}

// IsRetryableError reports whether the caller may safely retry the whole
// operation. Business-rule violations are not retryable.
func IsRetryableError(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
