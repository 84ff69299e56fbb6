package app

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/cafezinho/discovery/internal/cache"
	"github.com/cafezinho/discovery/internal/config"
	"github.com/cafezinho/discovery/internal/service/discovery"
	"github.com/cafezinho/discovery/internal/session"
)

// AppContext holds shared dependencies (DB, Redis, Logger, sessions, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache // nil when Redis is disabled or unreachable
	Logger     *slog.Logger
	Store      *session.Store
	Sessions   *discovery.Manager
}

// New creates a new AppContext
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, store *session.Store, sessions *discovery.Manager) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Store:      store,
		Sessions:   sessions,
	}
}

// Close releases everything in dependency order: live sessions first, since
// their in-flight work may still touch Redis, then Redis, then the database.
func (a *AppContext) Close() error {
	if a.Sessions != nil {
		a.Sessions.CloseAll()
	}

	var errs []error
	if a.RedisCache != nil {
		if err := a.RedisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}
