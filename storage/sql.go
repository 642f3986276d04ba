package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hiroq/fxcore/core"
)

// TradeDB implements core.TradeStorage on a SQL database via GORM
type TradeDB struct {
	db *gorm.DB
}

// TradeDBConfig holds the SQL connection pool settings
type TradeDBConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultTradeDBConfig returns the default pool settings
func DefaultTradeDBConfig() TradeDBConfig {
	return TradeDBConfig{
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// NewTradeDBSQLite opens a SQLite-backed trade store
func NewTradeDBSQLite(dbPath string, config TradeDBConfig, opts ...gorm.Option) (*TradeDB, error) {
	return newTradeDB(sqlite.Open(dbPath), config, opts...)
}

func newTradeDB(dialect gorm.Dialector, config TradeDBConfig, opts ...gorm.Option) (*TradeDB, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err = db.AutoMigrate(&core.TradeResult{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TradeDB{db: db}, nil
}

// SaveTrade persists a closed-trade result
func (s *TradeDB) SaveTrade(ctx context.Context, trade *core.TradeResult) error {
	if result := s.db.WithContext(ctx).Create(trade); result.Error != nil {
		return fmt.Errorf("failed to save trade: %w", result.Error)
	}
	return nil
}

// Trades returns the closed trades for an instrument, oldest first
func (s *TradeDB) Trades(ctx context.Context, instrument string) ([]*core.TradeResult, error) {
	var trades []*core.TradeResult
	result := s.db.WithContext(ctx).Order("closed_at asc").Find(&trades)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch trades: %w", result.Error)
	}

	if instrument != "" {
		trades = lo.Filter(trades, func(t *core.TradeResult, _ int) bool {
			return t.Instrument == instrument
		})
	}
	return trades, nil
}

// Close closes the database connection
func (s *TradeDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
