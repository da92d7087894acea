package migrations

import (
	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
//   - 001: catalog, user and engagement tables
//   - 002: composite index backing per-user recency queries
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002WatchRecencyIndex(),
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create catalog, user and engagement tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Genre{},
				&models.Actor{},
				&models.User{},
				&models.Media{},
				&models.Video{},
				&models.Rating{},
				&models.Review{},
				&models.WatchEvent{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"watch_events",
				"reviews",
				"ratings",
				"media_actors",
				"media_genres",
				"videos",
				"media",
				"users",
				"actors",
				"genres",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

const watchRecencyIndex = "idx_watch_events_user_recency"

func migration002WatchRecencyIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add (user_id, last_watched_at) index to watch_events",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.WatchEvent{}, watchRecencyIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + watchRecencyIndex + " ON watch_events (user_id, last_watched_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.WatchEvent{}, watchRecencyIndex) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.WatchEvent{}, watchRecencyIndex)
		},
	}
}
