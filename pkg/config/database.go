package config

import (
	"fmt"
	"time"

	"syntarex/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Models lists every table owned by the service.
func Models() []interface{} {
	return []interface{}{
		&models.CommissionSettings{},
		&models.RankDefinition{},
		&models.SalesTransaction{},
		&models.ReferralEdge{},
		&models.BinaryNode{},
		&models.GhostVolumeCredit{},
		&models.UserPackage{},
		&models.UserRank{},
		&models.RankHistory{},
		&models.BinaryVolumeEntry{},
		&models.CommissionEntry{},
		&models.WeeklySettlement{},
		&models.SettlementRun{},
		&models.SettlementExclusion{},
	}
}

// AutoMigrate creates or updates all tables on db.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// InitDB initializes the database connection
func InitDB(s *Settings) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		s.DBHost,
		s.DBUser,
		s.DBPassword,
		s.DBName,
		s.DBPort,
		s.DBSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance: ", err)
	}
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db

	if err := AutoMigrate(DB); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}
}
