// expiry-sweep is the scheduled entry point for the expiry scan: it reports
// expired and expiring-soon batches and, when EXPIRY_SWEEP_WRITE_OFF=true,
// posts the write-off adjustment. Intended to run daily from cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"bitbucket.org/mmdatafocus/pharmacy_backend/workflow"
)

func main() {
	accountId := flag.Int("account-id", 0, "Account for the write-off posting (required when write-off is enabled)")
	userId := flag.Int("user-id", 0, "User recorded on the write-off document")
	flag.Parse()

	if config.AutoWriteOffExpired() && *accountId <= 0 {
		fmt.Fprintln(os.Stderr, "--account-id is required when EXPIRY_SWEEP_WRITE_OFF=true")
		os.Exit(1)
	}

	ctx := context.Background()
	if *userId > 0 {
		ctx = utils.SetUserIdInContext(ctx, *userId)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	result, err := workflow.RunExpirySweep(ctx, logger, *accountId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expiry sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("expired batches with stock: %d\n", len(result.ExpiredBatches))
	fmt.Printf("batches expiring soon: %d\n", len(result.ExpiringSoon))
	if result.WriteOff != nil {
		fmt.Printf("write-off document: %s (status %s)\n", result.WriteOff.Number, result.WriteOff.Status)
	}
}
