package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Batch is a dated, priced receipt lot of one medicine.
//
// TotalQty accumulates every receipt into the lot (purchases, opening stock,
// sales returns), so RemainingQty == TotalQty minus net depletions at all
// times. RemainingQty is a materialized projection of the stock ledger: every
// mutation happens through a conditional UPDATE inside the same transaction as
// the ledger append, and cmd/inventory-rebuild can recompute it from the
// ledger at any time.
type Batch struct {
	ID           int             `gorm:"primary_key" json:"id"`
	MedicineId   int             `gorm:"not null;index;uniqueIndex:idx_batch_medicine_lot,priority:1" json:"medicine_id" binding:"required"`
	LotNumber    string          `gorm:"size:100;not null;uniqueIndex:idx_batch_medicine_lot,priority:2" json:"lot_number" binding:"required"`
	Barcode      string          `gorm:"size:100;not null;uniqueIndex" json:"barcode" binding:"required"`
	TotalQty     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_qty"`
	RemainingQty decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"remaining_qty"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	SalePrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	ExpiryDate   time.Time       `gorm:"not null;index" json:"expiry_date"`
	ReceivedDate time.Time       `gorm:"not null" json:"received_date"`
	IsDeleted    bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BatchSnapshot is the read shape handed to UI/reporting collaborators.
type BatchSnapshot struct {
	ID           int             `json:"id"`
	MedicineId   int             `json:"medicine_id"`
	LotNumber    string          `json:"lot_number"`
	Barcode      string          `json:"barcode"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	Status       BatchStatus     `json:"status"`
}

// StatusAt computes the batch status for a given instant. Transitions are
// derived, never stored: Deleted wins, then Expired (past expiry), then
// Quarantine (within quarantineDays of expiry), then Active.
func (b *Batch) StatusAt(now time.Time, quarantineDays int) BatchStatus {
	if b.IsDeleted {
		return BatchStatusDeleted
	}
	if !b.ExpiryDate.After(now) {
		return BatchStatusExpired
	}
	if !b.ExpiryDate.After(now.AddDate(0, 0, quarantineDays)) {
		return BatchStatusQuarantine
	}
	return BatchStatusActive
}

func (b *Batch) Status() BatchStatus {
	return b.StatusAt(time.Now().UTC(), config.BatchQuarantineDays())
}

// IsAllocatableAt reports whether the batch may satisfy a depletion: Active
// status, positive remaining quantity, expiry strictly in the future.
func (b *Batch) IsAllocatableAt(now time.Time, quarantineDays int) bool {
	return b.StatusAt(now, quarantineDays) == BatchStatusActive && b.RemainingQty.IsPositive()
}

func (b *Batch) Snapshot() BatchSnapshot {
	return BatchSnapshot{
		ID:           b.ID,
		MedicineId:   b.MedicineId,
		LotNumber:    b.LotNumber,
		Barcode:      b.Barcode,
		RemainingQty: b.RemainingQty,
		ExpiryDate:   b.ExpiryDate,
		Status:       b.Status(),
	}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// CreateBatchTx inserts a new batch inside the caller's transaction.
// Barcode must be globally unique and (medicine, lot) unique per medicine;
// both are also enforced by DB unique indexes, so a racing insert surfaces as
// DuplicateIdentityError rather than a second row.
func CreateBatchTx(tx *gorm.DB, batch *Batch) error {
	if batch.TotalQty.IsNegative() || batch.RemainingQty.IsNegative() {
		return errors.New("batch quantities cannot be negative")
	}
	if batch.RemainingQty.GreaterThan(batch.TotalQty) {
		return errors.New("remaining qty cannot exceed total qty")
	}

	var count int64
	if err := tx.Model(&Batch{}).Where("barcode = ?", batch.Barcode).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &DuplicateIdentityError{Field: "barcode", Value: batch.Barcode}
	}
	if err := tx.Model(&Batch{}).
		Where("medicine_id = ? AND lot_number = ?", batch.MedicineId, batch.LotNumber).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &DuplicateIdentityError{Field: "lot_number", Value: batch.LotNumber}
	}

	if err := tx.Create(batch).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return &DuplicateIdentityError{Field: "barcode or lot_number", Value: batch.Barcode}
		}
		return err
	}
	return nil
}

// FindBatchByLotTx returns the batch for a (medicine, lot) pair, or nil when
// no such batch exists. Logically deleted batches are not matched.
func FindBatchByLotTx(tx *gorm.DB, medicineId int, lotNumber string) (*Batch, error) {
	var batch Batch
	err := tx.Where("medicine_id = ? AND lot_number = ? AND is_deleted = ?", medicineId, lotNumber, false).
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// EligibleBatchesForUpdateTx fetches allocatable batches for a medicine in
// FEFO order (expiry ascending, id ascending for determinism) holding row
// locks for the remainder of the transaction.
func EligibleBatchesForUpdateTx(tx *gorm.DB, medicineId int, now time.Time) ([]Batch, error) {
	quarantineCutoff := now.AddDate(0, 0, config.BatchQuarantineDays())
	var batches []Batch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("medicine_id = ? AND is_deleted = ? AND remaining_qty > 0 AND expiry_date > ?",
			medicineId, false, quarantineCutoff).
		Order("expiry_date ASC, id ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// FetchBatchForUpdateTx loads one batch under a row lock.
func FetchBatchForUpdateTx(tx *gorm.DB, batchId int) (*Batch, error) {
	var batch Batch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", batchId).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// DecrementBatchQtyTx atomically consumes stock:
//
//	UPDATE batches SET remaining_qty = remaining_qty - qty
//	WHERE id = ? AND remaining_qty >= qty
//
// Zero rows affected means a concurrent writer got there first; the caller
// must abort the whole posting transaction.
func DecrementBatchQtyTx(tx *gorm.DB, batchId int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.New("decrement qty must be positive")
	}
	res := tx.Model(&Batch{}).
		Where("id = ? AND remaining_qty >= ?", batchId, qty).
		Update("remaining_qty", gorm.Expr("remaining_qty - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConflictError{BatchId: batchId}
	}
	return nil
}

// IncrementBatchQtyTx atomically restores previously depleted stock, refusing
// to push the batch above its received total. Used only when reversing a
// depletion; new receipts go through ReceiveBatchQtyTx.
func IncrementBatchQtyTx(tx *gorm.DB, batchId int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.New("increment qty must be positive")
	}
	res := tx.Model(&Batch{}).
		Where("id = ? AND remaining_qty + ? <= total_qty", batchId, qty).
		Update("remaining_qty", gorm.Expr("remaining_qty + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConflictError{BatchId: batchId}
	}
	return nil
}

// ReceiveBatchQtyTx records newly received stock on a lot. Total and remaining
// grow together, so a repeat purchase of an existing (medicine, lot) pair
// keeps remaining == total minus net depletions.
func ReceiveBatchQtyTx(tx *gorm.DB, batchId int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.New("receive qty must be positive")
	}
	res := tx.Model(&Batch{}).
		Where("id = ?", batchId).
		Updates(map[string]interface{}{
			"remaining_qty": gorm.Expr("remaining_qty + ?", qty),
			"total_qty":     gorm.Expr("total_qty + ?", qty),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// UnreceiveBatchQtyTx backs a receipt out again, shrinking total and remaining
// together. Zero rows affected means the received stock was already consumed
// downstream and the reversal must abort.
func UnreceiveBatchQtyTx(tx *gorm.DB, batchId int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.New("unreceive qty must be positive")
	}
	res := tx.Model(&Batch{}).
		Where("id = ? AND remaining_qty >= ? AND total_qty >= ?", batchId, qty, qty).
		Updates(map[string]interface{}{
			"remaining_qty": gorm.Expr("remaining_qty - ?", qty),
			"total_qty":     gorm.Expr("total_qty - ?", qty),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConflictError{BatchId: batchId}
	}
	return nil
}

func GetBatch(ctx context.Context, id int) (*Batch, error) {
	return utils.FetchModel[Batch](ctx, id)
}

func GetBatchSnapshots(ctx context.Context, medicineId int) ([]BatchSnapshot, error) {
	db := config.GetDB()
	var batches []Batch
	query := db.WithContext(ctx).Where("is_deleted = ?", false)
	if medicineId > 0 {
		query = query.Where("medicine_id = ?", medicineId)
	}
	if err := query.Order("expiry_date ASC, id ASC").Find(&batches).Error; err != nil {
		return nil, err
	}
	snapshots := make([]BatchSnapshot, 0, len(batches))
	for i := range batches {
		snapshots = append(snapshots, batches[i].Snapshot())
	}
	return snapshots, nil
}

// GetExpiringSoonBatches lists batches with stock expiring within the
// configured expiring-soon window.
func GetExpiringSoonBatches(ctx context.Context) ([]BatchSnapshot, error) {
	db := config.GetDB()
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, config.BatchExpiringSoonDays())
	var batches []Batch
	err := db.WithContext(ctx).
		Where("is_deleted = ? AND remaining_qty > 0 AND expiry_date > ? AND expiry_date <= ?", false, now, cutoff).
		Order("expiry_date ASC, id ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	snapshots := make([]BatchSnapshot, 0, len(batches))
	for i := range batches {
		snapshots = append(snapshots, batches[i].Snapshot())
	}
	return snapshots, nil
}

// DeleteBatch logically flags a batch. Batches are never physically deleted;
// the flag is part of every allocatability predicate.
func DeleteBatch(ctx context.Context, id int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Batch{}).Where("id = ?", id).
		Update("is_deleted", true).Error
}
