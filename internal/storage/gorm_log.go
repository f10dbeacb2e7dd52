package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Companion-Memory/server/internal/config"
	"Companion-Memory/server/internal/models"
)

// GormLog keeps the conversation log in a SQL database
type GormLog struct {
	db    *gorm.DB
	clock *Clock
}

// NewGormLog opens provider ("mysql" or "sqlite") at dsn and migrates the messages table
func NewGormLog(provider, dsn string, cfg config.DatabaseConfig) (*GormLog, error) {
	var dialector gorm.Dialector
	switch provider {
	case config.ProviderMySQL:
		dialector = mysql.Open(dsn)
	case config.ProviderSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql provider %q", provider)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if provider == config.ProviderSQLite {
		// one connection keeps an in-memory database alive and serialises writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&models.Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate messages: %w", err)
	}

	return &GormLog{db: db, clock: NewClock()}, nil
}

func (l *GormLog) Append(ctx context.Context, msg *models.Message) error {
	stamp(l.clock, &msg.ID, &msg.Timestamp)
	if err := l.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (l *GormLog) Recent(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var messages []*models.Message
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	return normalizeMoods(messages), nil
}

func (l *GormLog) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
