package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories/memory"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() services.TestService {
	return services.NewTestService(memory.NewMemoryRepository(), discardLogger(), validator.New(), nil, nil)
}

func TestParse(t *testing.T) {
	f, err := LoadFile("../../seed.example.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if f.Author != "100000001" || len(f.Tests) != 1 {
		t.Fatalf("LoadFile() = author %q, %d tests", f.Author, len(f.Tests))
	}

	def := f.Tests[0]
	if !def.Publish || def.TimeLimitSec != 600 || def.PassingPercent != 60 {
		t.Errorf("definition = %+v", def)
	}
	if len(def.Questions) != 4 {
		t.Fatalf("questions = %d, want 4", len(def.Questions))
	}
	numeric := def.Questions[3]
	if numeric.Type != models.QuestionNumeric || numeric.ExpectedNumber == nil || *numeric.ExpectedNumber != 0.75 {
		t.Errorf("numeric question = %+v", numeric)
	}
	if got := def.Questions[1].CorrectOptionIDs; len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("multiple correct ids = %v", got)
	}

	if _, err := Parse([]byte("tests: []\n")); !errors.Is(err, ErrNoAuthor) {
		t.Errorf("Parse() without author error = %v", err)
	}
	if _, err := Parse([]byte("author: [")); err == nil {
		t.Error("Parse() accepted malformed yaml")
	}
	if _, err := LoadFile("does-not-exist.yaml"); err == nil {
		t.Error("LoadFile() of a missing file succeeded")
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	tests := newTestService()

	f, err := LoadFile("../../seed.example.yaml")
	if err != nil {
		t.Fatal(err)
	}

	created, err := Apply(ctx, tests, f, discardLogger())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(created) != 1 || created[0].Status != models.TestPublished {
		t.Fatalf("Apply() = %+v", created)
	}
	if created[0].CreatedBy != f.Author || len(created[0].Questions) != 4 {
		t.Errorf("created test = %+v", created[0])
	}

	again, err := Apply(ctx, tests, f, discardLogger())
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second Apply() created %d tests", len(again))
	}
	mine, _ := tests.ListMine(ctx, f.Author)
	if len(mine) != 1 {
		t.Errorf("author owns %d tests, want 1", len(mine))
	}
}

func TestApply_InvalidDefinition(t *testing.T) {
	f, err := Parse([]byte(`
author: t-1
tests:
  - title: Broken
    time_limit_sec: 60
    questions:
      - type: single
        prompt: Pick one
        points: 1
        options: [{id: a, text: A}]
`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Apply(context.Background(), newTestService(), f, discardLogger())
	if !errors.Is(err, services.ErrValidationFailed) {
		t.Errorf("Apply() error = %v, want ErrValidationFailed", err)
	}
}
