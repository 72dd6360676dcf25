package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, module catalog.Module) (*ModuleSubscription, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, module catalog.Module) (*ModuleSubscription, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]ModuleSubscription, error)
	Insert(ctx context.Context, db *gorm.DB, sub *ModuleSubscription) error
	Update(ctx context.Context, db *gorm.DB, sub *ModuleSubscription) error

	// Sweeper queries.
	FindDueForCancel(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]ModuleSubscription, error)
	FindPastDueSince(ctx context.Context, db *gorm.DB, before time.Time) ([]ModuleSubscription, error)
	FindUnconfirmedSince(ctx context.Context, db *gorm.DB, before time.Time) ([]ModuleSubscription, error)
}
