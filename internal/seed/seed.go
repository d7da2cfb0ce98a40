// Package seed loads test definitions from YAML and creates them through the
// authoring service, so seeded tests pass the same validation as API input.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
)

type File struct {
	// Author is the teacher id that will own every test in the file.
	Author string           `yaml:"author"`
	Tests  []TestDefinition `yaml:"tests"`
}

type TestDefinition struct {
	models.TestCreateRequest `yaml:",inline"`
	Publish                  bool `yaml:"publish"`
}

var ErrNoAuthor = errors.New("seed file has no author")

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if f.Author == "" {
		return nil, ErrNoAuthor
	}
	return &f, nil
}

// Apply creates every test whose title the author does not already own.
// Running it twice leaves the store unchanged.
func Apply(ctx context.Context, tests services.TestService, f *File, logger *slog.Logger) ([]*models.Test, error) {
	existing, err := tests.ListMine(ctx, f.Author)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t.Title] = true
	}

	var created []*models.Test
	for i := range f.Tests {
		def := &f.Tests[i]
		if seen[def.Title] {
			logger.Info("Seed test already present", "title", def.Title)
			continue
		}

		test, err := tests.Create(ctx, &def.TestCreateRequest, f.Author)
		if err != nil {
			return created, fmt.Errorf("test %q: %w", def.Title, err)
		}
		if def.Publish {
			if test, err = tests.Publish(ctx, test.ID, f.Author); err != nil {
				return created, fmt.Errorf("publish %q: %w", def.Title, err)
			}
		}

		seen[def.Title] = true
		created = append(created, test)
		logger.Info("Seed test created",
			"test_id", test.ID,
			"title", test.Title,
			"status", test.Status)
	}
	return created, nil
}
