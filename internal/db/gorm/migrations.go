package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (recipients, grants, goals, templates)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&Recipient{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Grant{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Goal{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&GoalTemplate{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("goal_templates", "goals", "grants", "recipients")
			},
		},

		// Migration 002: Similarity score cache with unique pair index
		{
			ID: "002_sim_score_cache",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&SimScoreGoalCache{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sim_score_goal_caches")
			},
		},
	})

	return m.Migrate()
}
