package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeDocument is the abstraction shared by purchase/sale invoices and
// returns: anything the document workflow can approve, cancel or unapprove.
type TradeDocument interface {
	GetId() int
	GetStatus() DocumentStatus
	GetReferenceType() ReferenceType
}

// DocumentAudit carries the status-transition stamps shared by all trade
// documents. Line items and monetary fields freeze at Approve; only these
// fields change afterwards.
type DocumentAudit struct {
	CreatedBy   int        `gorm:"not null;default:0" json:"created_by"`
	ApprovedBy  *int       `json:"approved_by"`
	ApprovedAt  *time.Time `json:"approved_at"`
	CancelledBy *int       `json:"cancelled_by"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

// LineTotal computes a line amount with the single rounding step of the whole
// pipeline: ledger appends never round again.
func LineTotal(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitPrice).Round(2)
}

// CanApprove / CanCancel / CanUnapprove encode the one-way state machine:
// Draft -> Approved -> Cancelled, with Unapprove re-opening Approved -> Draft.

func CanApprove(status DocumentStatus) bool {
	return status == DocumentStatusDraft
}

func CanCancel(status DocumentStatus) bool {
	return status == DocumentStatusApproved
}

func CanUnapprove(status DocumentStatus) bool {
	return status == DocumentStatusApproved
}
