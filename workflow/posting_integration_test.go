package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"bitbucket.org/mmdatafocus/pharmacy_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func TestPostingLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	logger := logrus.New()

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "City Pharma Wholesale"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Walk-in"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Cash", Code: "CASH"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	medicine, err := models.CreateMedicine(ctx, &models.NewMedicine{Name: "Amoxicillin 500mg", Unit: "tablet"})
	if err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}

	expiryA := time.Now().UTC().AddDate(0, 6, 0)
	expiryB := time.Now().UTC().AddDate(1, 0, 0)

	// Purchase: two lots of the same medicine.
	pi, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		SupplierId: supplier.ID,
		AccountId:  account.ID,
		Details: []models.NewPurchaseInvoiceDetail{
			{MedicineId: medicine.ID, LotNumber: "LOT-A", Barcode: "BC-A", ExpiryDate: expiryA, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(5), SalePrice: decimal.NewFromInt(8)},
			{MedicineId: medicine.ID, LotNumber: "LOT-B", Barcode: "BC-B", ExpiryDate: expiryB, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(5), SalePrice: decimal.NewFromInt(8)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if pi.Number == "" || !strings.HasPrefix(pi.Number, "PI-") {
		t.Fatalf("expected generated PI number, got %q", pi.Number)
	}

	if _, err := workflow.ApprovePurchaseInvoice(ctx, logger, pi.ID); err != nil {
		t.Fatalf("ApprovePurchaseInvoice: %v", err)
	}

	snapshots, err := models.GetBatchSnapshots(ctx, medicine.ID)
	if err != nil {
		t.Fatalf("GetBatchSnapshots: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(snapshots))
	}

	balance, err := models.AccountBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(-100)) {
		t.Fatalf("expected account balance -100 after purchase, got %s", balance)
	}
	sup, _ := models.GetSupplier(ctx, supplier.ID)
	if !sup.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected supplier balance 100, got %s", sup.Balance)
	}

	// Sale of 12 must split across both lots, earliest expiry first.
	si, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId: customer.ID,
		AccountId:  account.ID,
		Details: []models.NewSalesInvoiceDetail{
			{MedicineId: medicine.ID, Qty: decimal.NewFromInt(12), UnitPrice: decimal.NewFromInt(8)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesInvoice: %v", err)
	}
	if _, err := workflow.ApproveSalesInvoice(ctx, logger, si.ID); err != nil {
		t.Fatalf("ApproveSalesInvoice: %v", err)
	}

	remaining := batchRemainingByLot(t, ctx, medicine.ID)
	if !remaining["LOT-A"].Equal(decimal.Zero) || !remaining["LOT-B"].Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected FEFO split A=0 B=8, got A=%s B=%s", remaining["LOT-A"], remaining["LOT-B"])
	}

	// Shortfall leaves the document Draft with no ledger rows.
	over, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		CustomerId: customer.ID,
		AccountId:  account.ID,
		Details: []models.NewSalesInvoiceDetail{
			{MedicineId: medicine.ID, Qty: decimal.NewFromInt(50), UnitPrice: decimal.NewFromInt(8)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesInvoice (oversell): %v", err)
	}
	if _, err := workflow.ApproveSalesInvoice(ctx, logger, over.ID); err == nil {
		t.Fatal("expected shortfall error")
	} else if _, ok := errAs[*models.ShortfallError](err); !ok {
		t.Fatalf("expected ShortfallError, got %T: %v", err, err)
	}
	overDoc, _ := models.GetSalesInvoice(ctx, over.ID)
	if overDoc.Status != models.DocumentStatusDraft {
		t.Fatalf("oversell invoice should stay Draft, got %s", overDoc.Status)
	}
	assertNoLedgerRows(t, models.ReferenceTypeSaleInvoice, over.ID)

	// Approving twice is an illegal transition.
	if _, err := workflow.ApproveSalesInvoice(ctx, logger, si.ID); err == nil {
		t.Fatal("expected illegal transition on double approve")
	} else if _, ok := errAs[*models.IllegalTransitionError](err); !ok {
		t.Fatalf("expected IllegalTransitionError, got %T: %v", err, err)
	}

	// Cancel restores batch projections and the financial side exactly.
	if _, err := workflow.CancelSalesInvoice(ctx, logger, si.ID, "customer changed mind"); err != nil {
		t.Fatalf("CancelSalesInvoice: %v", err)
	}
	remaining = batchRemainingByLot(t, ctx, medicine.ID)
	if !remaining["LOT-A"].Equal(decimal.NewFromInt(10)) || !remaining["LOT-B"].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected restored batches 10/10, got A=%s B=%s", remaining["LOT-A"], remaining["LOT-B"])
	}
	balance, _ = models.AccountBalance(ctx, account.ID)
	if !balance.Equal(decimal.NewFromInt(-100)) {
		t.Fatalf("expected account balance back to -100 after cancel, got %s", balance)
	}

	// Second cancel is an illegal transition; the reversal idempotency guard
	// backs it up at the ledger level.
	if _, err := workflow.CancelSalesInvoice(ctx, logger, si.ID, "again"); err == nil {
		t.Fatal("expected illegal transition on double cancel")
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, revErr := workflow.ReverseStockMovementsTx(tx, models.ReferenceTypeSaleInvoice, si.ID, "direct")
		return revErr
	})
	if _, ok := errAs[*models.ReversalConflictError](err); !ok {
		t.Fatalf("expected ReversalConflictError on double reversal, got %T: %v", err, err)
	}

	// A reversed reference holds exactly one compensating row per original in
	// each ledger, nothing more.
	movements, transactions := ledgerRowCounts(t, models.ReferenceTypeSaleInvoice, si.ID)
	if movements != 2 {
		t.Fatalf("expected 1 movement + 1 compensating row for the sale, got %d", movements)
	}
	if transactions != 2 {
		t.Fatalf("expected 1 transaction + 1 compensating row for the sale, got %d", transactions)
	}

	// Unapprove the purchase, then re-approve: the document returns to Draft
	// and posting again produces fresh ledger rows.
	if _, err := workflow.UnapprovePurchaseInvoice(ctx, logger, pi.ID, "fix price"); err != nil {
		t.Fatalf("UnapprovePurchaseInvoice: %v", err)
	}
	piDoc, _ := models.GetPurchaseInvoice(ctx, pi.ID)
	if piDoc.Status != models.DocumentStatusDraft {
		t.Fatalf("expected Draft after unapprove, got %s", piDoc.Status)
	}
	if _, err := workflow.ApprovePurchaseInvoice(ctx, logger, pi.ID); err != nil {
		t.Fatalf("re-approve purchase: %v", err)
	}

	// Damage write-off through an adjustment.
	lotB := findBatchByLot(t, ctx, medicine.ID, "LOT-B")
	adj, err := models.CreateStockAdjustment(ctx, &models.NewStockAdjustment{
		AccountId: account.ID,
		Reason:    "broken blister packs",
		Details: []models.NewStockAdjustmentDetail{
			{MedicineId: medicine.ID, BatchId: &lotB.ID, Qty: decimal.NewFromInt(-3), MovementType: models.MovementTypeDamage, UnitCost: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("CreateStockAdjustment: %v", err)
	}
	if _, err := workflow.ApproveStockAdjustment(ctx, logger, adj.ID); err != nil {
		t.Fatalf("ApproveStockAdjustment: %v", err)
	}
	remaining = batchRemainingByLot(t, ctx, medicine.ID)
	if !remaining["LOT-B"].Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected LOT-B at 7 after damage write-off, got %s", remaining["LOT-B"])
	}

	// Supplier payment settles part of the balance and cancel restores it.
	pay, err := models.CreatePayment(ctx, &models.NewPayment{
		Kind:       models.ReferenceTypeSupplierPayment,
		SupplierId: supplier.ID,
		AccountId:  account.ID,
		Amount:     decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if _, err := workflow.ApprovePayment(ctx, logger, pay.ID); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	sup, _ = models.GetSupplier(ctx, supplier.ID)
	if !sup.Balance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected supplier balance 60 after payment, got %s", sup.Balance)
	}
	if _, err := workflow.CancelPayment(ctx, logger, pay.ID, "wrong amount"); err != nil {
		t.Fatalf("CancelPayment: %v", err)
	}
	sup, _ = models.GetSupplier(ctx, supplier.ID)
	if !sup.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected supplier balance restored to 100, got %s", sup.Balance)
	}

	// Every projection must agree with its ledger at the end.
	batchIssues, err := workflow.ReconcileBatchQuantities(ctx, logger)
	if err != nil {
		t.Fatalf("ReconcileBatchQuantities: %v", err)
	}
	if len(batchIssues) != 0 {
		t.Fatalf("batch projections drifted: %+v", batchIssues)
	}
	accountIssues, err := workflow.ReconcileAccountBalances(ctx, logger)
	if err != nil {
		t.Fatalf("ReconcileAccountBalances: %v", err)
	}
	if len(accountIssues) != 0 {
		t.Fatalf("account balances drifted: %+v", accountIssues)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	logger := logrus.New()

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Wholesale"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Cash"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	medicine, err := models.CreateMedicine(ctx, &models.NewMedicine{Name: "Ibuprofen 200mg", Unit: "tablet"})
	if err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}

	pi, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		SupplierId: supplier.ID,
		AccountId:  account.ID,
		Details: []models.NewPurchaseInvoiceDetail{
			{MedicineId: medicine.ID, LotNumber: "LOT-C", Barcode: "BC-C", ExpiryDate: time.Now().UTC().AddDate(1, 0, 0), Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if _, err := workflow.ApprovePurchaseInvoice(ctx, logger, pi.ID); err != nil {
		t.Fatalf("ApprovePurchaseInvoice: %v", err)
	}

	// 8 + 7 > 10: exactly one of the two competing sales can post.
	quantities := []int64{8, 7}
	ids := make([]int, len(quantities))
	for i, qty := range quantities {
		si, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
			AccountId: account.ID,
			Details: []models.NewSalesInvoiceDetail{
				{MedicineId: medicine.ID, Qty: decimal.NewFromInt(qty), UnitPrice: decimal.NewFromInt(4)},
			},
		})
		if err != nil {
			t.Fatalf("CreateSalesInvoice: %v", err)
		}
		ids[i] = si.ID
	}

	var wg sync.WaitGroup
	results := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(slot, invoiceId int) {
			defer wg.Done()
			_, results[slot] = workflow.ApproveSalesInvoice(ctx, logger, invoiceId)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if _, ok := errAs[*models.ShortfallError](err); !ok {
			t.Fatalf("unexpected error from concurrent approve: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one concurrent sale to post, got %d", succeeded)
	}

	// The winner's depletion and the batch projection must agree.
	issues, err := workflow.ReconcileBatchQuantities(ctx, logger)
	if err != nil {
		t.Fatalf("ReconcileBatchQuantities: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("batch projections drifted under concurrency: %+v", issues)
	}
	sold := decimal.Zero
	for i, err := range results {
		if err == nil {
			doc, _ := models.GetSalesInvoice(ctx, ids[i])
			for _, d := range doc.Details {
				sold = sold.Add(d.Qty)
			}
		}
	}
	lotC := findBatchByLot(t, ctx, medicine.ID, "LOT-C")
	if !lotC.RemainingQty.Add(sold).Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock not conserved: remaining %s + sold %s != 10", lotC.RemainingQty, sold)
	}
}

func TestRepeatLotPurchaseAccumulates(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	logger := logrus.New()

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Wholesale"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Cash"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	medicine, err := models.CreateMedicine(ctx, &models.NewMedicine{Name: "Metformin 850mg", Unit: "tablet"})
	if err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}
	expiry := time.Now().UTC().AddDate(1, 0, 0)

	postLot := func(qty int64) *models.PurchaseInvoice {
		t.Helper()
		pi, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
			SupplierId: supplier.ID,
			AccountId:  account.ID,
			Details: []models.NewPurchaseInvoiceDetail{
				{MedicineId: medicine.ID, LotNumber: "LOT-R", Barcode: "BC-R", ExpiryDate: expiry, Qty: decimal.NewFromInt(qty), UnitCost: decimal.NewFromInt(3)},
			},
		})
		if err != nil {
			t.Fatalf("CreatePurchaseInvoice: %v", err)
		}
		if _, err := workflow.ApprovePurchaseInvoice(ctx, logger, pi.ID); err != nil {
			t.Fatalf("ApprovePurchaseInvoice qty %d: %v", qty, err)
		}
		return pi
	}

	// Two receipts into the same (medicine, lot) accumulate on one batch row.
	postLot(10)
	second := postLot(5)

	batch := findBatchByLot(t, ctx, medicine.ID, "LOT-R")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(15)) || !batch.TotalQty.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected 15/15 after repeat-lot purchase, got %s/%s", batch.RemainingQty, batch.TotalQty)
	}

	// Cancelling the second receipt shrinks remaining and total together.
	if _, err := workflow.CancelPurchaseInvoice(ctx, logger, second.ID, "over-ordered"); err != nil {
		t.Fatalf("CancelPurchaseInvoice: %v", err)
	}
	batch = findBatchByLot(t, ctx, medicine.ID, "LOT-R")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(10)) || !batch.TotalQty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10/10 after cancelling the second receipt, got %s/%s", batch.RemainingQty, batch.TotalQty)
	}

	// A third receipt followed by a sale that spans both receipts.
	third := postLot(5)
	si, err := models.CreateSalesInvoice(ctx, &models.NewSalesInvoice{
		AccountId: account.ID,
		Details: []models.NewSalesInvoiceDetail{
			{MedicineId: medicine.ID, Qty: decimal.NewFromInt(12), UnitPrice: decimal.NewFromInt(6)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesInvoice: %v", err)
	}
	if _, err := workflow.ApproveSalesInvoice(ctx, logger, si.ID); err != nil {
		t.Fatalf("ApproveSalesInvoice across receipts: %v", err)
	}
	batch = findBatchByLot(t, ctx, medicine.ID, "LOT-R")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 remaining after selling 12 of 15, got %s", batch.RemainingQty)
	}

	// The third receipt's 5 units are partly sold, so backing it out must
	// conflict instead of driving the batch negative.
	if _, err := workflow.CancelPurchaseInvoice(ctx, logger, third.ID, "too late"); err == nil {
		t.Fatal("expected conflict cancelling a consumed receipt")
	} else if _, ok := errAs[*models.ConflictError](err); !ok {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}

	issues, err := workflow.ReconcileBatchQuantities(ctx, logger)
	if err != nil {
		t.Fatalf("ReconcileBatchQuantities: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("batch projections drifted: %+v", issues)
	}
}

func TestReturnsRejectInactiveBatches(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	logger := logrus.New()

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Wholesale"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Walk-in"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Cash"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	medicine, err := models.CreateMedicine(ctx, &models.NewMedicine{Name: "Cetirizine 10mg", Unit: "tablet"})
	if err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}

	receive := func(lot, barcode string, expiry time.Time) *models.Batch {
		t.Helper()
		pi, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
			SupplierId: supplier.ID,
			AccountId:  account.ID,
			Details: []models.NewPurchaseInvoiceDetail{
				{MedicineId: medicine.ID, LotNumber: lot, Barcode: barcode, ExpiryDate: expiry, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(2)},
			},
		})
		if err != nil {
			t.Fatalf("CreatePurchaseInvoice: %v", err)
		}
		if _, err := workflow.ApprovePurchaseInvoice(ctx, logger, pi.ID); err != nil {
			t.Fatalf("ApprovePurchaseInvoice: %v", err)
		}
		return findBatchByLot(t, ctx, medicine.ID, lot)
	}

	// A lot one day from expiry sits in the quarantine window; a purchase
	// return may not pick it.
	quarantined := receive("LOT-Q", "BC-Q", time.Now().UTC().AddDate(0, 0, 1))
	pr, err := models.CreatePurchaseReturn(ctx, &models.NewPurchaseReturn{
		SupplierId: supplier.ID,
		AccountId:  account.ID,
		Details: []models.NewPurchaseReturnDetail{
			{MedicineId: medicine.ID, BatchId: quarantined.ID, Qty: decimal.NewFromInt(2), UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseReturn: %v", err)
	}
	if _, err := workflow.ApprovePurchaseReturn(ctx, logger, pr.ID); err == nil {
		t.Fatal("expected quarantined batch to be rejected")
	} else if ibe, ok := errAs[*models.InvalidBatchError](err); !ok {
		t.Fatalf("expected InvalidBatchError, got %T: %v", err, err)
	} else if ibe.Status != models.BatchStatusQuarantine {
		t.Fatalf("expected Quarantine status in error, got %s", ibe.Status)
	}
	assertNoLedgerRows(t, models.ReferenceTypePurchaseReturn, pr.ID)

	// A logically deleted batch is untouchable for returns and adjustments
	// alike.
	deleted := receive("LOT-X", "BC-X", time.Now().UTC().AddDate(1, 0, 0))
	if err := models.DeleteBatch(ctx, deleted.ID); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}

	sr, err := models.CreateSalesReturn(ctx, &models.NewSalesReturn{
		CustomerId: customer.ID,
		AccountId:  account.ID,
		Details: []models.NewSalesReturnDetail{
			{MedicineId: medicine.ID, BatchId: deleted.ID, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(4)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesReturn: %v", err)
	}
	if _, err := workflow.ApproveSalesReturn(ctx, logger, sr.ID); err == nil {
		t.Fatal("expected deleted batch to be rejected by sales return")
	} else if ibe, ok := errAs[*models.InvalidBatchError](err); !ok {
		t.Fatalf("expected InvalidBatchError, got %T: %v", err, err)
	} else if ibe.Status != models.BatchStatusDeleted {
		t.Fatalf("expected Deleted status in error, got %s", ibe.Status)
	}
	assertNoLedgerRows(t, models.ReferenceTypeSalesReturn, sr.ID)

	adj, err := models.CreateStockAdjustment(ctx, &models.NewStockAdjustment{
		AccountId: account.ID,
		Reason:    "shrinkage",
		Details: []models.NewStockAdjustmentDetail{
			{MedicineId: medicine.ID, BatchId: &deleted.ID, Qty: decimal.NewFromInt(-1), MovementType: models.MovementTypeDamage, UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreateStockAdjustment: %v", err)
	}
	if _, err := workflow.ApproveStockAdjustment(ctx, logger, adj.ID); err == nil {
		t.Fatal("expected deleted batch to be rejected by adjustment")
	} else if _, ok := errAs[*models.InvalidBatchError](err); !ok {
		t.Fatalf("expected InvalidBatchError, got %T: %v", err, err)
	}
	assertNoLedgerRows(t, models.ReferenceTypeManualAdjustment, adj.ID)
}

func TestReturnUnapproveReopensDraft(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	logger := logrus.New()

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Wholesale"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Cash"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	medicine, err := models.CreateMedicine(ctx, &models.NewMedicine{Name: "Omeprazole 20mg", Unit: "capsule"})
	if err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}

	pi, err := models.CreatePurchaseInvoice(ctx, &models.NewPurchaseInvoice{
		SupplierId: supplier.ID,
		AccountId:  account.ID,
		Details: []models.NewPurchaseInvoiceDetail{
			{MedicineId: medicine.ID, LotNumber: "LOT-U", Barcode: "BC-U", ExpiryDate: time.Now().UTC().AddDate(1, 0, 0), Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if _, err := workflow.ApprovePurchaseInvoice(ctx, logger, pi.ID); err != nil {
		t.Fatalf("ApprovePurchaseInvoice: %v", err)
	}
	batch := findBatchByLot(t, ctx, medicine.ID, "LOT-U")

	pr, err := models.CreatePurchaseReturn(ctx, &models.NewPurchaseReturn{
		SupplierId: supplier.ID,
		AccountId:  account.ID,
		Details: []models.NewPurchaseReturnDetail{
			{MedicineId: medicine.ID, BatchId: batch.ID, Qty: decimal.NewFromInt(4), UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseReturn: %v", err)
	}
	if _, err := workflow.ApprovePurchaseReturn(ctx, logger, pr.ID); err != nil {
		t.Fatalf("ApprovePurchaseReturn: %v", err)
	}
	batch = findBatchByLot(t, ctx, medicine.ID, "LOT-U")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected 6 remaining after return, got %s", batch.RemainingQty)
	}
	sup, _ := models.GetSupplier(ctx, supplier.ID)
	if !sup.Balance.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected supplier balance 12 after return, got %s", sup.Balance)
	}

	// Unapprove restores the stock and the supplier balance and reopens the
	// document for editing.
	doc, err := workflow.UnapprovePurchaseReturn(ctx, logger, pr.ID, "wrong batch")
	if err != nil {
		t.Fatalf("UnapprovePurchaseReturn: %v", err)
	}
	if doc.Status != models.DocumentStatusDraft {
		t.Fatalf("expected Draft after unapprove, got %s", doc.Status)
	}
	if doc.ApprovedBy != nil || doc.ApprovedAt != nil {
		t.Fatal("expected approval stamps cleared after unapprove")
	}
	batch = findBatchByLot(t, ctx, medicine.ID, "LOT-U")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10 remaining after unapprove, got %s", batch.RemainingQty)
	}
	sup, _ = models.GetSupplier(ctx, supplier.ID)
	if !sup.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected supplier balance 20 after unapprove, got %s", sup.Balance)
	}

	// Re-approving posts fresh ledger rows.
	if _, err := workflow.ApprovePurchaseReturn(ctx, logger, pr.ID); err != nil {
		t.Fatalf("re-approve purchase return: %v", err)
	}
	batch = findBatchByLot(t, ctx, medicine.ID, "LOT-U")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected 6 remaining after re-approve, got %s", batch.RemainingQty)
	}

	// Sales return unapprove follows the same path.
	sr, err := models.CreateSalesReturn(ctx, &models.NewSalesReturn{
		AccountId: account.ID,
		Details: []models.NewSalesReturnDetail{
			{MedicineId: medicine.ID, BatchId: batch.ID, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(4)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesReturn: %v", err)
	}
	if _, err := workflow.ApproveSalesReturn(ctx, logger, sr.ID); err != nil {
		t.Fatalf("ApproveSalesReturn: %v", err)
	}
	srDoc, err := workflow.UnapproveSalesReturn(ctx, logger, sr.ID, "mis-keyed qty")
	if err != nil {
		t.Fatalf("UnapproveSalesReturn: %v", err)
	}
	if srDoc.Status != models.DocumentStatusDraft {
		t.Fatalf("expected Draft after sales return unapprove, got %s", srDoc.Status)
	}
	batch = findBatchByLot(t, ctx, medicine.ID, "LOT-U")
	if !batch.RemainingQty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected 6 remaining after sales return unapprove, got %s", batch.RemainingQty)
	}

	issues, err := workflow.ReconcileBatchQuantities(ctx, logger)
	if err != nil {
		t.Fatalf("ReconcileBatchQuantities: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("batch projections drifted: %+v", issues)
	}
}

// errAs is a tiny generic wrapper over errors.As for test readability.
func errAs[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "pharmacy_test")

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		t.Fatal("db is nil after ConnectDatabaseWithRetry")
	}
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func batchRemainingByLot(t *testing.T, ctx context.Context, medicineId int) map[string]decimal.Decimal {
	t.Helper()
	snapshots, err := models.GetBatchSnapshots(ctx, medicineId)
	if err != nil {
		t.Fatalf("GetBatchSnapshots: %v", err)
	}
	out := make(map[string]decimal.Decimal, len(snapshots))
	for _, s := range snapshots {
		out[s.LotNumber] = s.RemainingQty
	}
	return out
}

func findBatchByLot(t *testing.T, ctx context.Context, medicineId int, lotNumber string) *models.Batch {
	t.Helper()
	db := config.GetDB()
	var batch models.Batch
	if err := db.WithContext(ctx).
		Where("medicine_id = ? AND lot_number = ?", medicineId, lotNumber).
		First(&batch).Error; err != nil {
		t.Fatalf("find batch %s: %v", lotNumber, err)
	}
	return &batch
}

func ledgerRowCounts(t *testing.T, referenceType models.ReferenceType, referenceId int) (movements, transactions int64) {
	t.Helper()
	db := config.GetDB()
	db.Model(&models.StockMovement{}).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Count(&movements)
	db.Model(&models.FinancialTransaction{}).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Count(&transactions)
	return movements, transactions
}

func assertNoLedgerRows(t *testing.T, referenceType models.ReferenceType, referenceId int) {
	t.Helper()
	movements, transactions := ledgerRowCounts(t, referenceType, referenceId)
	if movements != 0 || transactions != 0 {
		t.Fatalf("expected no ledger rows for %s/%d, got %d movements and %d transactions", referenceType, referenceId, movements, transactions)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pharmacy-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=pharmacy_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
