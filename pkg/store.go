package pkg

import (
	"github.com/redis/go-redis/v9"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/config"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories/memory"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories/postgres"
)

// OpenRepository builds the store selected by cfg.StoreDriver. The memory
// store keeps nothing across restarts.
func OpenRepository(cfg *config.Config, redisClient *redis.Client) (repositories.Repository, error) {
	if cfg.StoreDriver == "memory" {
		return memory.NewMemoryRepository(), nil
	}

	db, err := InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	}), nil
}
