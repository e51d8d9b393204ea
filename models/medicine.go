package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
)

// Medicine is master data. The core only needs id -> name/unit lookups; CRUD
// here is intentionally thin.
type Medicine struct {
	ID         int        `gorm:"primary_key" json:"id"`
	Name       string     `gorm:"size:255;not null;index" json:"name" binding:"required"`
	GenericName string    `gorm:"size:255" json:"generic_name"`
	Unit       string     `gorm:"size:50;not null" json:"unit" binding:"required"`
	CategoryId int        `gorm:"index" json:"category_id"`
	Barcode    string     `gorm:"size:100;index" json:"barcode"`
	IsDeleted  bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type MedicineCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	IsDeleted bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMedicine struct {
	Name        string `json:"name" binding:"required"`
	GenericName string `json:"generic_name"`
	Unit        string `json:"unit" binding:"required"`
	CategoryId  int    `json:"category_id"`
	Barcode     string `json:"barcode"`
}

func CreateMedicine(ctx context.Context, input *NewMedicine) (*Medicine, error) {
	if input.CategoryId > 0 {
		if err := utils.ValidateResourceId[MedicineCategory](ctx, input.CategoryId); err != nil {
			return nil, errors.New("medicine category not found")
		}
	}
	medicine := Medicine{
		Name:        input.Name,
		GenericName: input.GenericName,
		Unit:        input.Unit,
		CategoryId:  input.CategoryId,
		Barcode:     input.Barcode,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&medicine).Error; err != nil {
		return nil, err
	}
	return &medicine, nil
}

func GetMedicine(ctx context.Context, id int) (*Medicine, error) {
	medicine, err := utils.FetchModel[Medicine](ctx, id)
	if err != nil {
		return nil, err
	}
	if medicine.IsDeleted {
		return nil, utils.ErrorRecordNotFound
	}
	return medicine, nil
}

func ListMedicines(ctx context.Context) ([]Medicine, error) {
	return utils.FetchModels[Medicine](ctx, "is_deleted = ?", false)
}

func DeleteMedicine(ctx context.Context, id int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Medicine{}).Where("id = ?", id).
		Update("is_deleted", true).Error
}
