package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	Phone     string          `gorm:"size:50" json:"phone"`
	Address   string          `gorm:"size:255" json:"address"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsDeleted bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	customer := Customer{
		Name:    input.Name,
		Phone:   input.Phone,
		Address: input.Address,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	customer, err := utils.FetchModel[Customer](ctx, id)
	if err != nil {
		return nil, err
	}
	if customer.IsDeleted {
		return nil, utils.ErrorRecordNotFound
	}
	return customer, nil
}

func ListCustomers(ctx context.Context) ([]Customer, error) {
	return utils.FetchModels[Customer](ctx, "is_deleted = ?", false)
}
