package config

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"jansetu-be/models"
)

// ConnectDB opens the Postgres connection pool and migrates the issues
// table. The returned handle is constructed once in main and passed down.
func ConnectDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Issue{}); err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}
