package database

import (
	"log"

	"patent_explorer_go_backend/cmd/api/config"
	"patent_explorer_go_backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB opens the hosted Postgres database in production and an embedded
// SQLite file in development, then migrates the schema.
func InitDB(cfg *config.Config) {
	var err error
	if cfg.Mode == config.ModeProduction {
		DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	} else if cfg.DatabaseDSN != "" {
		DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	} else {
		DB, err = gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
	}
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatal("Failed to auto migrate:", err)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.Message{},
		&models.Chart{},
		&models.CSVArtifact{},
		&models.RateLimitRecord{},
	)
}
