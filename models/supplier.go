package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
)

type Supplier struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	Phone     string          `gorm:"size:50" json:"phone"`
	Address   string          `gorm:"size:255" json:"address"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsDeleted bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	supplier := Supplier{
		Name:    input.Name,
		Phone:   input.Phone,
		Address: input.Address,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	supplier, err := utils.FetchModel[Supplier](ctx, id)
	if err != nil {
		return nil, err
	}
	if supplier.IsDeleted {
		return nil, utils.ErrorRecordNotFound
	}
	return supplier, nil
}

func ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return utils.FetchModels[Supplier](ctx, "is_deleted = ?", false)
}
