package migration

import (
	"github.com/smallbiznis/bizsuite/internal/config"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	organizationdomain "github.com/smallbiznis/bizsuite/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	"github.com/smallbiznis/bizsuite/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres environments (local sqlite, CI) take the schema
			// straight from the models.
			if err := conn.AutoMigrate(
				&organizationdomain.Organization{},
				&subdomain.ModuleSubscription{},
				&paymentdomain.EventRecord{},
				&paymentdomain.SubscriptionEventLog{},
			); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureDefaultOrgWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureDefaultOrg(conn)
	}),
)
