package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	organizationdomain "github.com/smallbiznis/bizsuite/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() organizationdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organizationdomain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *organizationdomain.Organization) error {
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	return db.WithContext(ctx).Create(org).Error
}

func (r *repo) UpdatePlanTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier catalog.PlanTier) error {
	result := db.WithContext(ctx).
		Model(&organizationdomain.Organization{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"plan_tier":  tier,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return organizationdomain.ErrNotFound
	}
	return nil
}
