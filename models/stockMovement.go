package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is one append-only inventory ledger row: a signed quantity
// delta for a (medicine, batch) pair, tagged with the movement type and the
// document that caused it.
//
// Rows are never updated or deleted. A cancellation inserts a compensating row
// (negated qty, same reference) and links the pair through the reversal
// fields; for a given (reference_type, reference_id) the reversal linkage is
// the idempotency guard against double-reversal.
type StockMovement struct {
	ID            int             `gorm:"primary_key" json:"id"`
	MedicineId    int             `gorm:"index;not null;index:idx_sm_medicine_batch,priority:1" json:"medicine_id"`
	BatchId       *int            `gorm:"index;index:idx_sm_medicine_batch,priority:2" json:"batch_id"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	MovementType  MovementType    `gorm:"type:enum('Purchase','Sale','PurchaseReturn','SalesReturn','Adjustment','Damage','Expiry');not null" json:"movement_type"`
	ReferenceType ReferenceType   `gorm:"type:enum('PI','SI','PR','SR','ADJ','OB','SP','CR');not null;index:idx_sm_reference,priority:1" json:"reference_type"`
	ReferenceId   int             `gorm:"not null;index:idx_sm_reference,priority:2" json:"reference_id"`
	LineNo        int             `gorm:"not null;default:0" json:"line_no"`
	Note          string          `gorm:"size:255" json:"note"`
	MovementDate  time.Time       `gorm:"index;not null" json:"movement_date"`

	IsReversal           bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesMovementId   *int       `gorm:"index" json:"reverses_movement_id"`
	ReversedByMovementId *int       `gorm:"index" json:"reversed_by_movement_id"`
	ReversalReason       *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt           *time.Time `gorm:"index" json:"reversed_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Ledger immutability guardrails: only reversal linkage fields may ever change.

func (m *StockMovement) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: stock_movements cannot be deleted")
}

func (m *StockMovement) BeforeUpdate(tx *gorm.DB) error {
	allowed := map[string]bool{
		"ReversedByMovementId": true,
		"ReversalReason":       true,
		"ReversedAt":           true,
		"UpdatedAt":            true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only reversal linkage fields may be updated on stock_movements")
		}
	}
	return nil
}

// AppendStockMovementTx appends one ledger row inside the caller's
// transaction. A negative delta that would drive the batch's derived balance
// below zero is rejected before writing; the workflow must already have
// validated and decremented through the allocator path.
func AppendStockMovementTx(tx *gorm.DB, movement *StockMovement) error {
	if movement.Qty.IsZero() {
		return errors.New("stock movement qty cannot be zero")
	}
	if !movement.MovementType.IsValid() {
		return errors.New("invalid movement type")
	}
	if !movement.ReferenceType.IsValid() {
		return errors.New("invalid reference type")
	}
	if movement.MovementDate.IsZero() {
		movement.MovementDate = time.Now().UTC()
	}

	if movement.Qty.IsNegative() && movement.BatchId != nil {
		balance, err := StockBalanceTx(tx, movement.MedicineId, movement.BatchId)
		if err != nil {
			return err
		}
		if balance.Add(movement.Qty).IsNegative() {
			return &ShortfallError{
				MedicineId: movement.MedicineId,
				Requested:  movement.Qty.Neg(),
				Available:  balance,
			}
		}
	}

	return tx.Create(movement).Error
}

// StockBalanceTx sums ledger deltas for a medicine, optionally scoped to one
// batch. This sum must always equal batch.remaining_qty for batch scopes.
func StockBalanceTx(tx *gorm.DB, medicineId int, batchId *int) (decimal.Decimal, error) {
	var result struct {
		Balance decimal.Decimal
	}
	query := tx.Model(&StockMovement{}).
		Select("COALESCE(SUM(qty), 0) AS balance").
		Where("medicine_id = ?", medicineId)
	if batchId != nil {
		query = query.Where("batch_id = ?", *batchId)
	}
	if err := query.Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Balance, nil
}

func StockBalance(ctx context.Context, medicineId int, batchId *int) (decimal.Decimal, error) {
	db := config.GetDB()
	return StockBalanceTx(db.WithContext(ctx), medicineId, batchId)
}

// StockMovementsForReferenceTx returns all ledger rows for one document in
// insertion order (line order within the document, then reversal rows).
func StockMovementsForReferenceTx(tx *gorm.DB, referenceType ReferenceType, referenceId int) ([]StockMovement, error) {
	var movements []StockMovement
	err := tx.Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id ASC").
		Find(&movements).Error
	return movements, err
}

// GetStockCard returns the ordered movement list for a (medicine, batch) pair
// with a running balance, for rendering by reporting collaborators.
type StockCardRow struct {
	Movement StockMovement   `json:"movement"`
	Balance  decimal.Decimal `json:"balance"`
}

func GetStockCard(ctx context.Context, medicineId int, batchId *int) ([]StockCardRow, error) {
	db := config.GetDB()
	var movements []StockMovement
	query := db.WithContext(ctx).Where("medicine_id = ?", medicineId)
	if batchId != nil {
		query = query.Where("batch_id = ?", *batchId)
	}
	if err := query.Order("id ASC").Find(&movements).Error; err != nil {
		return nil, err
	}

	rows := make([]StockCardRow, 0, len(movements))
	running := decimal.Zero
	for _, m := range movements {
		running = running.Add(m.Qty)
		rows = append(rows, StockCardRow{Movement: m, Balance: running})
	}
	return rows, nil
}
