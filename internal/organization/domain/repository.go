package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("organization_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	UpdatePlanTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier catalog.PlanTier) error
}
