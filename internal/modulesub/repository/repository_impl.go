package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subdomain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, module catalog.Module) (*subdomain.ModuleSubscription, error) {
	var sub subdomain.ModuleSubscription
	err := db.WithContext(ctx).
		Where("org_id = ? AND module = ?", orgID, module).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subdomain.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, module catalog.Module) (*subdomain.ModuleSubscription, error) {
	tx := db.WithContext(ctx)
	// SQLite serializes writers on its own and rejects FOR UPDATE.
	if db.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var sub subdomain.ModuleSubscription
	err := tx.Where("org_id = ? AND module = ?", orgID, module).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subdomain.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]subdomain.ModuleSubscription, error) {
	var subs []subdomain.ModuleSubscription
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("module ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subdomain.ModuleSubscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *subdomain.ModuleSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	result := db.WithContext(ctx).
		Model(&subdomain.ModuleSubscription{}).
		Where("id = ?", sub.ID).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(sub)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return subdomain.ErrNotFound
	}
	return nil
}

func (r *repo) FindDueForCancel(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subdomain.ModuleSubscription, error) {
	var subs []subdomain.ModuleSubscription
	query := db.WithContext(ctx).
		Where("cancel_at_period_end = ? AND current_period_end <= ? AND status <> ?",
			true, now, subdomain.StatusCanceled).
		Order("current_period_end ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) FindPastDueSince(ctx context.Context, db *gorm.DB, before time.Time) ([]subdomain.ModuleSubscription, error) {
	var subs []subdomain.ModuleSubscription
	err := db.WithContext(ctx).
		Where("status = ? AND past_due_since IS NOT NULL AND past_due_since <= ?",
			subdomain.StatusPastDue, before).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) FindUnconfirmedSince(ctx context.Context, db *gorm.DB, before time.Time) ([]subdomain.ModuleSubscription, error) {
	var subs []subdomain.ModuleSubscription
	err := db.WithContext(ctx).
		Where("pending_confirm_since IS NOT NULL AND pending_confirm_since <= ?", before).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
