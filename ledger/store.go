package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harrowgate/llmgate/internal/migration"
)

// StoreConfig tunes the embedded store's connection pool, mirroring the
// teacher's database.PoolConfig shape (internal/database/pool.go).
type StoreConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{
		Path: path,
		// The Writer serializes its own batched commits onto a single
		// logical writer regardless of pool size (writer.go), but WAL mode
		// permits concurrent readers alongside that one writer. Capping the
		// pool at 1 would force SpendToday/CountInWindow/dailyTotals/Top
		// reads to queue behind in-flight writer transactions on the same
		// connection; give readers room to run concurrently instead.
		MaxOpenConns:    8,
		MaxIdleConns:    8,
		ConnMaxLifetime: time.Hour,
	}
}

// Store wraps the GORM handle opened against the embedded sqlite file with
// the pragmas spec §6 mandates, plus schema migration.
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger
}

// Open connects to cfg.Path, applies journal_mode=WAL/synchronous=NORMAL/
// busy_timeout=5000 (spec §6), and runs the embedded schema migration
// before returning.
func Open(cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := migration.Migrate(cfg.Path, logger); err != nil {
		return nil, fmt.Errorf("ledger migration: %w", err)
	}

	logger.Info("ledger store opened", zap.String("path", cfg.Path))

	return &Store{db: db, sqlDB: sqlDB, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.sqlDB.Close()
}
