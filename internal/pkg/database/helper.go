package database

import (
	"context"

	"gorm.io/gorm"
)

// MaxPageSize caps every paginated query
const MaxPageSize = 1000

// Paginate adds offset pagination to a query
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * clampPageSize(pageSize)).Limit(clampPageSize(pageSize))
	}
}

// Limit adds a bounded limit to a query
func Limit(limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(clampPageSize(limit))
	}
}

// WhereIf conditionally adds a where clause
func WhereIf(condition bool, query interface{}, args ...interface{}) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if condition {
			return db.Where(query, args...)
		}
		return db
	}
}

// Exists checks if a record matching query exists
func Exists(ctx context.Context, db *gorm.DB, model interface{}, query interface{}, args ...interface{}) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(model).Where(query, args...).Limit(1).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func clampPageSize(size int) int {
	switch {
	case size < 1:
		return 10
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}
