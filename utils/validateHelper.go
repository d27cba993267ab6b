package utils

import (
	"context"
	"errors"
	"reflect"

	"github.com/precifix/costing_backend/config"
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

func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records matching the condition
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
