package migration

import (
	auditdomain "github.com/minghua-center/minghua/internal/audit/domain"
	"github.com/minghua-center/minghua/internal/config"
	"github.com/minghua-center/minghua/internal/identity/local"
	invitationdomain "github.com/minghua-center/minghua/internal/invitation/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// SQLite has no versioned migration path; the schema is
			// derived from the models directly.
			return conn.AutoMigrate(
				&local.Account{},
				&local.Session{},
				&profiledomain.Profile{},
				&invitationdomain.Invitation{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
