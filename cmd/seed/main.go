// Command seed creates the tests described in a YAML file in the configured
// store. It is a no-op for tests the author already owns.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/config"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/seed"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
	"github.com/raximov/telegram-mini-app-project-sub000/pkg"
)

func main() {
	path := flag.String("file", "seed.yaml", "YAML file with test definitions")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.StoreDriver == "memory" {
		log.Fatalf("Seeding the memory store is pointless; set SEED_FILE on the server instead")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	f, err := seed.LoadFile(*path)
	if err != nil {
		log.Fatalf("Failed to load seed file: %v", err)
	}

	repo, err := pkg.OpenRepository(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repo.Close()

	// Nobody listens to this process's events.
	tests := services.NewTestService(repo, logger, validator.New(), cache.NewCacheManager(nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	created, err := seed.Apply(ctx, tests, f, logger)
	if err != nil {
		log.Fatalf("Seeding failed after %d tests: %v", len(created), err)
	}
	logger.Info("Seed complete", "file", *path, "author", f.Author, "created", len(created))
}
