package models

// BatchStatus is computed from expiry dates and the logical-delete flag; it is
// never set directly by callers.
type BatchStatus string

const (
	BatchStatusActive     BatchStatus = "Active"
	BatchStatusQuarantine BatchStatus = "Quarantine"
	BatchStatusExpired    BatchStatus = "Expired"
	BatchStatusDeleted    BatchStatus = "Deleted"
)

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive, BatchStatusQuarantine, BatchStatusExpired, BatchStatusDeleted:
		return true
	}
	return false
}

type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "Draft"
	DocumentStatusApproved  DocumentStatus = "Approved"
	DocumentStatusCancelled DocumentStatus = "Cancelled"
)

func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusApproved, DocumentStatusCancelled:
		return true
	}
	return false
}

type MovementType string

const (
	MovementTypePurchase       MovementType = "Purchase"
	MovementTypeSale           MovementType = "Sale"
	MovementTypePurchaseReturn MovementType = "PurchaseReturn"
	MovementTypeSalesReturn    MovementType = "SalesReturn"
	MovementTypeAdjustment     MovementType = "Adjustment"
	MovementTypeDamage         MovementType = "Damage"
	MovementTypeExpiry         MovementType = "Expiry"
)

func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypePurchase, MovementTypeSale, MovementTypePurchaseReturn,
		MovementTypeSalesReturn, MovementTypeAdjustment, MovementTypeDamage, MovementTypeExpiry:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionTypeIncome     TransactionType = "Income"
	TransactionTypeExpense    TransactionType = "Expense"
	TransactionTypeAdjustment TransactionType = "Adjustment"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeAdjustment:
		return true
	}
	return false
}

// ReferenceType identifies the business document kind that caused a ledger
// entry. Stock and financial ledgers share this vocabulary.
type ReferenceType string

const (
	ReferenceTypePurchaseInvoice  ReferenceType = "PI"
	ReferenceTypeSaleInvoice      ReferenceType = "SI"
	ReferenceTypePurchaseReturn   ReferenceType = "PR"
	ReferenceTypeSalesReturn      ReferenceType = "SR"
	ReferenceTypeManualAdjustment ReferenceType = "ADJ"
	ReferenceTypeOpeningBalance   ReferenceType = "OB"
	ReferenceTypeSupplierPayment  ReferenceType = "SP"
	ReferenceTypeCustomerReceipt  ReferenceType = "CR"
)

func (t ReferenceType) IsValid() bool {
	switch t {
	case ReferenceTypePurchaseInvoice, ReferenceTypeSaleInvoice,
		ReferenceTypePurchaseReturn, ReferenceTypeSalesReturn,
		ReferenceTypeManualAdjustment, ReferenceTypeOpeningBalance,
		ReferenceTypeSupplierPayment, ReferenceTypeCustomerReceipt:
		return true
	}
	return false
}

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// StatusDisplay is the presentation triple for a status value. It lives here
// as a pure lookup so renderers never store display attributes.
type StatusDisplay struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

var documentStatusDisplays = map[DocumentStatus]StatusDisplay{
	DocumentStatusDraft:     {Label: "Draft", Color: "gray", Icon: "edit"},
	DocumentStatusApproved:  {Label: "Approved", Color: "green", Icon: "check-circle"},
	DocumentStatusCancelled: {Label: "Cancelled", Color: "red", Icon: "x-circle"},
}

var batchStatusDisplays = map[BatchStatus]StatusDisplay{
	BatchStatusActive:     {Label: "Active", Color: "green", Icon: "check-circle"},
	BatchStatusQuarantine: {Label: "Quarantine", Color: "orange", Icon: "alert-triangle"},
	BatchStatusExpired:    {Label: "Expired", Color: "red", Icon: "clock"},
	BatchStatusDeleted:    {Label: "Deleted", Color: "gray", Icon: "trash"},
}

func (s DocumentStatus) Display() StatusDisplay {
	return documentStatusDisplays[s]
}

func (s BatchStatus) Display() StatusDisplay {
	return batchStatusDisplays[s]
}
