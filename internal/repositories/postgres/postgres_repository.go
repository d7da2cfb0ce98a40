package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager

	test     repositories.TestRepository
	question repositories.QuestionRepository
	attempt  repositories.AttemptRepository
}

type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	return newRepository(config.DB, cache.NewCacheManager(config.RedisClient))
}

func newRepository(db *gorm.DB, cm *cache.CacheManager) *PostgreSQLRepository {
	return &PostgreSQLRepository{
		db:           db,
		cacheManager: cm,
		test:         NewTestPostgreSQL(db, cm),
		question:     NewQuestionPostgreSQL(db, cm),
		attempt:      NewAttemptPostgreSQL(db),
	}
}

func (r *PostgreSQLRepository) Test() repositories.TestRepository         { return r.test }
func (r *PostgreSQLRepository) Question() repositories.QuestionRepository { return r.question }
func (r *PostgreSQLRepository) Attempt() repositories.AttemptRepository   { return r.attempt }

func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepository(tx, r.cacheManager))
	})
}

func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// translateError maps gorm errors onto repository sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case repositories.IsNotFoundError(err):
		return fmt.Errorf("%w: %v", repositories.ErrNotFound, err)
	case repositories.IsConflictError(err):
		return fmt.Errorf("%w: %v", repositories.ErrConflict, err)
	}
	return err
}
