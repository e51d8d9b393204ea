package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
)

// Account holds a cached running balance. The financial ledger is the source
// of truth; the cache is maintained under the same transaction as every ledger
// append and can be reconciled against the ledger sum at any time.
type Account struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Code      string          `gorm:"size:50;uniqueIndex" json:"code"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsActive  bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name string `json:"name" binding:"required"`
	Code string `json:"code"`
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	account := Account{
		Name:     input.Name,
		Code:     input.Code,
		IsActive: true,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccount(ctx context.Context, id int) (*Account, error) {
	account, err := utils.FetchModel[Account](ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, utils.ErrorRecordNotFound
	}
	return account, nil
}

func ListAccounts(ctx context.Context) ([]Account, error) {
	return utils.FetchModels[Account](ctx, "is_active = ?", true)
}
