package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"p9e.in/lakewatch/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "01062025_create_rois",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Roi{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("rois")
			},
		},
		{
			ID: "01062025_create_observations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Observation{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("observations")
			},
		},
	})
	return m.Migrate()
}
