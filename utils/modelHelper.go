package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

func FetchModels[T any](ctx context.Context, cond string, values ...interface{}) ([]T, error) {
	db := config.GetDB()
	var results []T
	err := db.WithContext(ctx).Where(cond, values...).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
