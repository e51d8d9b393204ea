// inventory-rebuild recomputes the cached batch quantities and account
// balances from their ledgers. Run it after manual table surgery or when the
// reconcile endpoints report drift.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/inventory-rebuild
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/workflow"
)

func main() {
	checkOnly := flag.Bool("check-only", false, "Report drift without rewriting projections")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if *checkOnly {
		batchIssues, err := workflow.ReconcileBatchQuantities(ctx, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "batch reconcile failed: %v\n", err)
			os.Exit(1)
		}
		accountIssues, err := workflow.ReconcileAccountBalances(ctx, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "account reconcile failed: %v\n", err)
			os.Exit(1)
		}
		for _, issue := range batchIssues {
			fmt.Printf("batch %d: cached=%s ledger=%s\n", issue.EntityId, issue.Cached, issue.Ledger)
		}
		for _, issue := range accountIssues {
			fmt.Printf("account %d: cached=%s ledger=%s\n", issue.EntityId, issue.Cached, issue.Ledger)
		}
		if len(batchIssues)+len(accountIssues) == 0 {
			fmt.Println("projections match their ledgers")
		}
		return
	}

	batches, err := workflow.RepairBatchQuantities(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch repair failed: %v\n", err)
		os.Exit(1)
	}
	accounts, err := workflow.RepairAccountBalances(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "account repair failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt %d batch projections and %d account balances\n", batches, accounts)
}
