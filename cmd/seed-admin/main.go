// seed-admin creates or reactivates the operations console user. Audit stamps
// on documents reference users by id, so fresh deployments need at least one.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"gorm.io/gorm"
)

const (
	adminUsername = "pharmacyAdmin"
	adminName     = "Pharmacy Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	var existing models.User
	err := db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	if err == nil {
		if !existing.IsActive {
			if err := db.WithContext(ctx).Model(&existing).Update("is_active", true).Error; err != nil {
				fmt.Fprintf(os.Stderr, "failed to reactivate admin user: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("reactivated admin user %q (id %d)\n", adminUsername, existing.ID)
			return
		}
		fmt.Printf("admin user %q already exists (id %d)\n", adminUsername, existing.ID)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to look up admin user: %v\n", err)
		os.Exit(1)
	}

	user, err := models.CreateUser(ctx, adminName, adminUsername)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created admin user %q (id %d)\n", adminUsername, user.ID)
}
