package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/types"
	"github.com/auditlens/auditlens-backend/internal/utils"
)

type PostgresService struct {
	DB  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	log = log.With("service", "PostgresService")
	host := utils.GetEnv("DB_HOST", "localhost", log)
	port := utils.GetEnv("DB_PORT", "5432", log)
	user := utils.GetEnv("DB_USER", "postgres", log)
	pass := utils.GetEnv("DB_PASSWORD", "postgres", log)
	name := utils.GetEnv("DB_NAME", "auditlens", log)
	ssl := utils.GetEnv("DB_SSLMODE", "disable", log)

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, ssl)
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := gormDB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Warn("could not ensure uuid-ossp extension", "error", err)
	}
	log.Info("Connected to postgres", "host", host, "db", name)
	return &PostgresService{DB: gormDB, log: log}, nil
}

func (p *PostgresService) AutoMigrateAll() error {
	return p.DB.AutoMigrate(
		&types.Tenant{},
		&types.Client{},
		&types.User{},
		&types.RCM{},
		&types.TestAttribute{},
		&types.Evidence{},
		&types.EvidenceDocument{},
		&types.TestExecution{},
		&types.EvaluationRecord{},
		&types.AIPrompt{},
		&types.ExtractionJob{},
		&types.AICallLog{},
	)
}

func (p *PostgresService) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
