package persistence

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vitrine/backend/internal/domain/integration"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrganizationScope restricts a query to one organization's rows
func OrganizationScope(orgID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("organization_id = ?", orgID)
	}
}

// Paginate applies LIMIT/OFFSET for a 1-based page
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	page, pageSize = normalizePage(page, pageSize)
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return page, pageSize
}

// storeError tags a database failure as a local store error, keeping the cause
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, integration.ErrLocalStore, err)
}
