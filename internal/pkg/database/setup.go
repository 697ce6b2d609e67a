package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/env"
	"github.com/arsound/arsound/internal/pkg/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// DSN builds the postgres connection string from DB_* variables.
func DSN() string {
	if dsn := env.GetEnv("DB_DSN", ""); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_USER", "arsound"),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_NAME", "arsound"),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_SSLMODE", "disable"),
	)
}

// URL is the migrate-style URL for the same database.
func URL() string {
	if u := env.GetEnv("DB_URL", ""); u != "" {
		return u
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		env.GetEnv("DB_USER", "arsound"),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_NAME", "arsound"),
		env.GetEnv("DB_SSLMODE", "disable"),
	)
}

// SetupDatabase connects with retries. Schema is owned by cmd/migrate; set
// DB_AUTO_MIGRATE=true for local development without migrations.
func SetupDatabase() {
	var err error
	log := logger.Get()

	level := gormlogger.Warn
	if env.IsDev() {
		level = gormlogger.Info
	}

	for i := 0; i < maxRetries; i++ {
		var db *gorm.DB
		db, err = gorm.Open(postgres.Open(DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(level),
		})
		if err == nil {
			if sqlDB, derr := db.DB(); derr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(30 * time.Minute)
			}
			if env.GetBool("DB_AUTO_MIGRATE", false) {
				if err = db.AutoMigrate(models.AllModels()...); err != nil {
					panic(err)
				}
			}
			SetDB(db)
			return
		}

		log.Warn("failed to connect to database", "attempt", i+1, "max", maxRetries, "error", err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

func GetDB() *gorm.DB {
	return DB
}

// SetDB swaps the shared handle, used by tests with sqlite.
func SetDB(db *gorm.DB) {
	DB = db
}
