package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vidflex-worker-go/internal/models"
)

// Open opens the sqlite database and migrates the schema. Use ":memory:"
// for tests.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&models.StreamConfig{},
		&models.ClipRecord{},
		&models.EntityType{},
		&models.KeyFrame{},
		&models.DetectedObject{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Database opened")
	return db, nil
}
