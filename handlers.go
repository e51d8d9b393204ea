package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models/reports"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"bitbucket.org/mmdatafocus/pharmacy_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// respondError maps the typed domain errors onto HTTP statuses. Retryable
// conflicts and already-reversed references are 409; business-rule rejections
// that name the offending input are 422.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var shortfall *models.ShortfallError
	var invalidBatch *models.InvalidBatchError
	var illegal *models.IllegalTransitionError
	var duplicate *models.DuplicateIdentityError
	var reversalConflict *models.ReversalConflictError
	var conflict *models.ConflictError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.As(err, &shortfall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       err.Error(),
			"medicine_id": shortfall.MedicineId,
			"requested":   shortfall.Requested,
			"available":   shortfall.Available,
			"line_no":     shortfall.LineNo,
		})
	case errors.As(err, &invalidBatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    err.Error(),
			"batch_id": invalidBatch.BatchId,
			"status":   invalidBatch.Status,
			"line_no":  invalidBatch.LineNo,
		})
	case errors.As(err, &illegal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": illegal.From})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "field": duplicate.Field})
	case errors.As(err, &reversalConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "request is already being processed"})
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
	default:
		config.LogError(logger, "handlers", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// withPostingGuard layers a best-effort Redis lock over a posting action. The
// MySQL advisory lock inside the workflow is what actually guarantees
// serialization; this only sheds duplicate requests before they hit the
// database. Redis being down never blocks posting.
func withPostingGuard(c *gin.Context, logger *logrus.Logger, handlerName string, id int, fn func(ctx context.Context) error) {
	ctx := c.Request.Context()

	if locker := config.GetRedisLock(); locker != nil {
		key := "lock:" + handlerName + ":" + strconv.Itoa(id)
		lock, err := locker.Obtain(ctx, key, 30*time.Second, nil)
		if err == nil {
			defer func() { _ = lock.Release(ctx) }()
		} else if err != redislock.ErrNotObtained {
			logger.WithField("key", key).Warn("redis lock unavailable, relying on database lock")
		}
	}

	// An Idempotency-Key header makes the posting at-most-once under client
	// retries; without it the document state machine still rejects replays.
	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey != "" {
		db := config.GetDB().WithContext(ctx)
		skip, err := workflow.BeginIdempotency(db, handlerName, idemKey)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if skip {
			c.JSON(http.StatusOK, gin.H{"status": "already processed"})
			return
		}
		if err := fn(ctx); err != nil {
			_ = workflow.MarkIdempotencyFailed(db, handlerName, idemKey, err)
			respondError(c, logger, err)
			return
		}
		if err := workflow.MarkIdempotencySucceeded(db, handlerName, idemKey); err != nil {
			config.LogError(logger, "handlers", "withPostingGuard", "mark succeeded", map[string]interface{}{"key": idemKey}, err)
		}
		return
	}

	if err := fn(ctx); err != nil {
		respondError(c, logger, err)
	}
}

type reasonBody struct {
	Reason string `json:"reason" binding:"required"`
}

func registerRoutes(r *gin.Engine, logger *logrus.Logger) {
	registerMasterDataRoutes(r, logger)
	registerDocumentRoutes(r, logger)
	registerPostingRoutes(r, logger)
	registerReportRoutes(r, logger)
	registerOpsRoutes(r, logger)
}

func registerMasterDataRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.POST("/medicines", func(c *gin.Context) {
		var input models.NewMedicine
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		medicine, err := models.CreateMedicine(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, medicine)
	})
	r.GET("/medicines", func(c *gin.Context) {
		medicines, err := models.ListMedicines(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, medicines)
	})
	r.GET("/medicines/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		medicine, err := models.GetMedicine(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, medicine)
	})
	r.GET("/medicines/:id/batches", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		snapshots, err := models.GetBatchSnapshots(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, snapshots)
	})
	r.GET("/medicines/:id/stock-card", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var batchId *int
		if v := c.Query("batch_id"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch_id"})
				return
			}
			batchId = &n
		}
		rows, err := models.GetStockCard(c.Request.Context(), id, batchId)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	r.DELETE("/medicines/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteMedicine(c.Request.Context(), id); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/suppliers", func(c *gin.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		supplier, err := models.CreateSupplier(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	})
	r.GET("/suppliers", func(c *gin.Context) {
		suppliers, err := models.ListSuppliers(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, suppliers)
	})

	r.POST("/customers", func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	})
	r.GET("/customers", func(c *gin.Context) {
		customers, err := models.ListCustomers(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, customers)
	})

	r.POST("/accounts", func(c *gin.Context) {
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	})
	r.GET("/accounts", func(c *gin.Context) {
		accounts, err := models.ListAccounts(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, accounts)
	})

	r.GET("/batches/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.GetBatch(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, batch.Snapshot())
	})
	r.DELETE("/batches/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteBatch(c.Request.Context(), id); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerDocumentRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.POST("/purchase-invoices", func(c *gin.Context) {
		var input models.NewPurchaseInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		invoice, err := models.CreatePurchaseInvoice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	})
	r.GET("/purchase-invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		invoice, err := models.GetPurchaseInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	})
	r.PUT("/purchase-invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewPurchaseInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		invoice, err := models.UpdatePurchaseInvoice(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	})
	r.DELETE("/purchase-invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeletePurchaseInvoice(c.Request.Context(), id); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/sales-invoices", func(c *gin.Context) {
		var input models.NewSalesInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		invoice, err := models.CreateSalesInvoice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	})
	r.GET("/sales-invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		invoice, err := models.GetSalesInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	})
	r.PUT("/sales-invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewSalesInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		invoice, err := models.UpdateSalesInvoice(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	})
	r.DELETE("/sales-invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteSalesInvoice(c.Request.Context(), id); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/purchase-returns", func(c *gin.Context) {
		var input models.NewPurchaseReturn
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		ret, err := models.CreatePurchaseReturn(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, ret)
	})
	r.GET("/purchase-returns/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ret, err := models.GetPurchaseReturn(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, ret)
	})
	r.DELETE("/purchase-returns/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeletePurchaseReturn(c.Request.Context(), id); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/sales-returns", func(c *gin.Context) {
		var input models.NewSalesReturn
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		ret, err := models.CreateSalesReturn(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, ret)
	})
	r.GET("/sales-returns/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ret, err := models.GetSalesReturn(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, ret)
	})
	r.DELETE("/sales-returns/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteSalesReturn(c.Request.Context(), id); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/stock-adjustments", func(c *gin.Context) {
		var input models.NewStockAdjustment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		doc, err := models.CreateStockAdjustment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	})
	r.GET("/stock-adjustments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		doc, err := models.GetStockAdjustment(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	r.POST("/payments", func(c *gin.Context) {
		var input models.NewPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, logger, err)
			return
		}
		payment, err := models.CreatePayment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	})
	r.GET("/payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		payment, err := models.GetPayment(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})
}

func registerPostingRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.POST("/purchase-invoices/:id/approve", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		withPostingGuard(c, logger, "purchase-invoice-approve", id, func(ctx context.Context) error {
			invoice, err := workflow.ApprovePurchaseInvoice(ctx, logger, id)
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, invoice)
			return nil
		})
	})
	r.POST("/purchase-invoices/:id/cancel", func(c *gin.Context) {
		postReversal(c, logger, "purchase-invoice-cancel", workflowReversal(workflow.CancelPurchaseInvoice))
	})
	r.POST("/purchase-invoices/:id/unapprove", func(c *gin.Context) {
		postReversal(c, logger, "purchase-invoice-unapprove", workflowReversal(workflow.UnapprovePurchaseInvoice))
	})

	r.POST("/sales-invoices/:id/approve", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		withPostingGuard(c, logger, "sales-invoice-approve", id, func(ctx context.Context) error {
			invoice, err := workflow.ApproveSalesInvoice(ctx, logger, id)
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, invoice)
			return nil
		})
	})
	r.POST("/sales-invoices/:id/cancel", func(c *gin.Context) {
		postReversal(c, logger, "sales-invoice-cancel", workflowReversal(workflow.CancelSalesInvoice))
	})
	r.POST("/sales-invoices/:id/unapprove", func(c *gin.Context) {
		postReversal(c, logger, "sales-invoice-unapprove", workflowReversal(workflow.UnapproveSalesInvoice))
	})

	r.POST("/purchase-returns/:id/approve", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		withPostingGuard(c, logger, "purchase-return-approve", id, func(ctx context.Context) error {
			ret, err := workflow.ApprovePurchaseReturn(ctx, logger, id)
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, ret)
			return nil
		})
	})
	r.POST("/purchase-returns/:id/cancel", func(c *gin.Context) {
		postReversal(c, logger, "purchase-return-cancel", workflowReversal(workflow.CancelPurchaseReturn))
	})
	r.POST("/purchase-returns/:id/unapprove", func(c *gin.Context) {
		postReversal(c, logger, "purchase-return-unapprove", workflowReversal(workflow.UnapprovePurchaseReturn))
	})

	r.POST("/sales-returns/:id/approve", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		withPostingGuard(c, logger, "sales-return-approve", id, func(ctx context.Context) error {
			ret, err := workflow.ApproveSalesReturn(ctx, logger, id)
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, ret)
			return nil
		})
	})
	r.POST("/sales-returns/:id/cancel", func(c *gin.Context) {
		postReversal(c, logger, "sales-return-cancel", workflowReversal(workflow.CancelSalesReturn))
	})
	r.POST("/sales-returns/:id/unapprove", func(c *gin.Context) {
		postReversal(c, logger, "sales-return-unapprove", workflowReversal(workflow.UnapproveSalesReturn))
	})

	r.POST("/stock-adjustments/:id/approve", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		withPostingGuard(c, logger, "stock-adjustment-approve", id, func(ctx context.Context) error {
			doc, err := workflow.ApproveStockAdjustment(ctx, logger, id)
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, doc)
			return nil
		})
	})
	r.POST("/stock-adjustments/:id/cancel", func(c *gin.Context) {
		postReversal(c, logger, "stock-adjustment-cancel", workflowReversal(workflow.CancelStockAdjustment))
	})

	r.POST("/payments/:id/approve", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		withPostingGuard(c, logger, "payment-approve", id, func(ctx context.Context) error {
			payment, err := workflow.ApprovePayment(ctx, logger, id)
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, payment)
			return nil
		})
	})
	r.POST("/payments/:id/cancel", func(c *gin.Context) {
		postReversal(c, logger, "payment-cancel", workflowReversal(workflow.CancelPayment))
	})
}

// workflowReversal adapts the cancel/unapprove functions, which share a
// signature modulo the returned document type, into one handler shape.
func workflowReversal[T any](fn func(context.Context, *logrus.Logger, int, string) (*T, error)) func(context.Context, *logrus.Logger, int, string) (interface{}, error) {
	return func(ctx context.Context, logger *logrus.Logger, id int, reason string) (interface{}, error) {
		return fn(ctx, logger, id, reason)
	}
}

func postReversal(c *gin.Context, logger *logrus.Logger, handlerName string, fn func(context.Context, *logrus.Logger, int, string) (interface{}, error)) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, logger, err)
		return
	}
	withPostingGuard(c, logger, handlerName, id, func(ctx context.Context) error {
		doc, err := fn(ctx, logger, id, body.Reason)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, doc)
		return nil
	})
}

func registerReportRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.GET("/reports/stock-summary", func(c *gin.Context) {
		records, err := reports.GetStockSummaryReport(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, records)
	})
	r.GET("/reports/expiry", func(c *gin.Context) {
		records, err := reports.GetExpiryReport(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, records)
	})
	r.GET("/reports/general-ledger", func(c *gin.Context) {
		from, to, ok := dateRange(c)
		if !ok {
			return
		}
		var accountId *int
		if v := c.Query("account_id"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
				return
			}
			accountId = &n
		}
		transactions, err := models.GetGeneralLedger(c.Request.Context(), from, to, accountId)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, transactions)
	})
	r.GET("/reports/stock-card.xlsx", func(c *gin.Context) {
		medicineId, err := strconv.Atoi(c.Query("medicine_id"))
		if err != nil || medicineId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid medicine_id"})
			return
		}
		var batchId *int
		if v := c.Query("batch_id"); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch_id"})
				return
			}
			batchId = &n
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=stock-card.xlsx")
		if err := reports.ExportStockCardExcel(c.Request.Context(), c.Writer, medicineId, batchId); err != nil {
			config.LogError(logger, "handlers", "stock-card.xlsx", "export", map[string]interface{}{"medicine_id": medicineId}, err)
		}
	})
	r.GET("/reports/general-ledger.xlsx", func(c *gin.Context) {
		from, to, ok := dateRange(c)
		if !ok {
			return
		}
		var accountId *int
		if v := c.Query("account_id"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
				return
			}
			accountId = &n
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=general-ledger.xlsx")
		if err := reports.ExportGeneralLedgerExcel(c.Request.Context(), c.Writer, from, to, accountId); err != nil {
			config.LogError(logger, "handlers", "general-ledger.xlsx", "export", nil, err)
		}
	})
}

func dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	// End date is inclusive for callers; the ledger query uses a half-open
	// range.
	return from, to.AddDate(0, 0, 1), true
}

func registerOpsRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.POST("/internal/ops/expiry-sweep", func(c *gin.Context) {
		accountId, _ := strconv.Atoi(c.Query("account_id"))
		result, err := workflow.RunExpirySweep(c.Request.Context(), logger, accountId)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	r.GET("/internal/ops/reconcile/batches", func(c *gin.Context) {
		issues, err := workflow.ReconcileBatchQuantities(c.Request.Context(), logger)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	})
	r.GET("/internal/ops/reconcile/accounts", func(c *gin.Context) {
		issues, err := workflow.ReconcileAccountBalances(c.Request.Context(), logger)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	})
	r.POST("/internal/ops/reconcile/batches/repair", func(c *gin.Context) {
		repaired, err := workflow.RepairBatchQuantities(c.Request.Context(), logger)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"repaired": repaired})
	})
	r.POST("/internal/ops/reconcile/accounts/repair", func(c *gin.Context) {
		repaired, err := workflow.RepairAccountBalances(c.Request.Context(), logger)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"repaired": repaired})
	})

	r.POST("/internal/ops/opening-stock", func(c *gin.Context) {
		var body struct {
			AsOf  time.Time                   `json:"as_of"`
			Lines []workflow.OpeningStockLine `json:"lines" binding:"required,dive"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, logger, err)
			return
		}
		batches, err := workflow.PostOpeningStock(c.Request.Context(), logger, body.Lines, body.AsOf)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, batches)
	})
	r.POST("/internal/ops/opening-balance", func(c *gin.Context) {
		var body struct {
			AccountId int             `json:"account_id" binding:"required"`
			Amount    decimal.Decimal `json:"amount" binding:"required"`
			AsOf      time.Time       `json:"as_of"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, logger, err)
			return
		}
		transaction, err := workflow.PostOpeningAccountBalance(c.Request.Context(), logger, body.AccountId, body.Amount, body.AsOf)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, transaction)
	})
}
