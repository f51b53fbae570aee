package repositories

import (
	"context"

	"camwatch/internal/core/ports"
	"camwatch/internal/infrastructure/repositories/gormrepo"
	"camwatch/internal/infrastructure/repositories/memory"
	"camwatch/pkg/config"
	"camwatch/pkg/retry"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	db     *gorm.DB
	store  *memory.Store
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// NewRepositoryFactory connects to the configured SQL database, retrying while
// it comes up, and falls back to the in-memory store when it stays unreachable.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Database.Driver != "memory" {
		err := retry.Do(ctx, retry.DefaultConfig(), func(context.Context) error {
			db, err := gormrepo.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns, logger)
			if err != nil {
				return err
			}
			factory.db = db
			return nil
		})
		if err != nil {
			logger.Warnw("failed to connect to database, falling back to memory repositories",
				"driver", cfg.Database.Driver,
				"error", err,
			)
		}
	}

	if factory.db == nil {
		factory.store = memory.NewStore()
		logger.Info("using memory repositories")
	}

	return factory
}

// CreateStreamRepository wraps the backing repository with a lookup cache.
func (f *RepositoryFactory) CreateStreamRepository() ports.StreamRepository {
	var repo ports.StreamRepository
	if f.db != nil {
		repo = gormrepo.NewStreamRepository(f.db)
	} else {
		repo = f.store.Streams()
	}
	if f.cfg.Database.CacheSize > 0 {
		return NewCachedStreamRepository(repo, f.cfg.Database.CacheSize, f.cfg.Database.CacheTTL)
	}
	return repo
}

func (f *RepositoryFactory) CreateDetectionRepository() ports.DetectionRepository {
	if f.db != nil {
		return gormrepo.NewDetectionRepository(f.db)
	}
	return f.store.Detections()
}

func (f *RepositoryFactory) CreateAlertRepository() ports.AlertRepository {
	if f.db != nil {
		return gormrepo.NewAlertRepository(f.db)
	}
	return f.store.Alerts()
}

func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	if f.db != nil {
		return gormrepo.NewUserRepository(f.db)
	}
	return f.store.Users()
}

// Close closes the database connection if used
func (f *RepositoryFactory) Close() error {
	if f.db != nil {
		return gormrepo.Close(f.db)
	}
	return nil
}

// HealthCheck pings the database when one is in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.db != nil {
		return gormrepo.Ping(f.db)
	}
	return nil
}
