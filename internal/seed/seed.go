// Package seed bootstraps the default organization so a fresh install can
// serve entitlement checks immediately.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	organizationdomain "github.com/smallbiznis/bizsuite/internal/organization/domain"
	"gorm.io/gorm"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
)

// EnsureDefaultOrg seeds the default organization on the FREE tier.
func EnsureDefaultOrg(db *gorm.DB) error {
	return ensureOrg(db, nil)
}

// EnsureDefaultOrgWithID seeds the default organization under a fixed ID, so
// environments can pin the tenant used by provisioning scripts.
func EnsureDefaultOrgWithID(db *gorm.DB, id int64) error {
	fixed := snowflake.ID(id)
	return ensureOrg(db, &fixed)
}

func ensureOrg(db *gorm.DB, fixedID *snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing organizationdomain.Organization
		err := tx.Where("slug = ?", defaultOrgSlug).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		id := node.Generate()
		if fixedID != nil {
			id = *fixedID
		}
		now := time.Now().UTC()
		org := organizationdomain.Organization{
			ID:        id,
			Name:      defaultOrgName,
			Slug:      defaultOrgSlug,
			PlanTier:  catalog.PlanFree,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&org).Error
	})
}
