package utils

import (
	"context"
	"reflect"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
)

// check if id exists, return RecordNotFound error otherwise
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// check if ALL ids exist, return RecordNotFound error otherwise
func ValidateResourcesId[M any, ID comparable](ctx context.Context, ids []ID) error {
	unqIds := UniqueSlice(ids)

	count, err := ResourceCountWhere[M](ctx, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}
	return nil
}

func ResourceCountWhere[T any](ctx context.Context, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).Where(cond, values...).Count(&count).Error
	return count, err
}

// ValidateUnique counts rows matching column=value excluding exceptId (pass the zero value for creates).
func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	query := db.WithContext(ctx).Model(&model).Where(column+" = ?", value)
	if !reflect.ValueOf(exceptId).IsZero() {
		query = query.Where("id != ?", exceptId)
	}
	err := query.Count(&count).Error
	return count, err
}
