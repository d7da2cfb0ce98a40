package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

const (
	summarySheet = "Summary"
	resultsSheet = "Results"
)

type reportService struct {
	repo   repositories.Repository
	logger *slog.Logger
	cache  *cache.CacheManager
}

func NewReportService(repo repositories.Repository, logger *slog.Logger, cm *cache.CacheManager) ReportService {
	if cm == nil {
		cm = cache.NewCacheManager(nil)
	}
	return &reportService{
		repo:   repo,
		logger: logger,
		cache:  cm,
	}
}

func (s *reportService) Summary(ctx context.Context, testID, teacherID string) (*models.TeacherResultsSummary, error) {
	if err := s.checkAuthor(ctx, testID, teacherID); err != nil {
		return nil, err
	}

	var summary models.TeacherResultsSummary
	err := s.cache.Summary.CacheOrExecute(ctx, cache.SummaryKey(testID), &summary, cache.SummaryCacheConfig.TTL, func() (interface{}, error) {
		attempts, err := s.repo.Attempt().ListByTest(ctx, testID, repositories.AttemptFilters{})
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts: %w", err)
		}
		return Summarize(testID, attempts), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Results summary served",
		"test_id", testID,
		"total_attempts", summary.TotalAttempts)
	return &summary, nil
}

func (s *reportService) Export(ctx context.Context, testID, teacherID string) ([]byte, error) {
	if err := s.checkAuthor(ctx, testID, teacherID); err != nil {
		return nil, err
	}

	attempts, err := s.repo.Attempt().ListByTest(ctx, testID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	summary := Summarize(testID, attempts)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := writeSummarySheet(f, summary); err != nil {
		return nil, fmt.Errorf("failed to write summary sheet: %w", err)
	}
	if err := writeResultsSheet(f, attempts); err != nil {
		return nil, fmt.Errorf("failed to write results sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Results exported",
		"test_id", testID,
		"teacher_id", teacherID,
		"attempts", summary.TotalAttempts,
		"bytes", buf.Len())
	return buf.Bytes(), nil
}

func (s *reportService) checkAuthor(ctx context.Context, testID, teacherID string) error {
	test, err := s.repo.Test().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to get test: %w", err)
	}
	if test.CreatedBy != teacherID {
		return NewPermissionError(teacherID, testID, "test", "view results", "not the test author")
	}
	return nil
}

// Summarize folds every attempt that carries a result. Attempts without one
// (in progress or expired) are skipped, never counted as zero.
func Summarize(testID string, attempts []*models.Attempt) *models.TeacherResultsSummary {
	summary := &models.TeacherResultsSummary{
		TestID:    testID,
		Questions: []models.QuestionSummary{},
	}

	var (
		sumPercent float64
		passed     int
		perQ       = make(map[string]*models.QuestionSummary)
		order      []string
	)
	for _, a := range attempts {
		if a == nil || a.Result == nil {
			continue
		}
		r := a.Result
		summary.TotalAttempts++
		sumPercent += r.Percentage
		if r.Passed {
			passed++
		}
		if summary.TotalAttempts == 1 || r.Percentage > summary.HighestPercentage {
			summary.HighestPercentage = r.Percentage
		}
		if summary.TotalAttempts == 1 || r.Percentage < summary.LowestPercentage {
			summary.LowestPercentage = r.Percentage
		}

		for _, b := range r.Breakdown {
			qs, ok := perQ[b.QuestionID]
			if !ok {
				qs = &models.QuestionSummary{QuestionID: b.QuestionID, Prompt: b.Prompt}
				perQ[b.QuestionID] = qs
				order = append(order, b.QuestionID)
			}
			if b.Answered {
				qs.Answered++
			}
			if b.Correct {
				qs.Correct++
			}
		}
	}

	if summary.TotalAttempts == 0 {
		return summary
	}

	n := float64(summary.TotalAttempts)
	summary.AverageScore = round2(sumPercent / n)
	summary.PassRate = round2(float64(passed) / n * 100)
	summary.HighestPercentage = round2(summary.HighestPercentage)
	summary.LowestPercentage = round2(summary.LowestPercentage)

	for _, id := range order {
		qs := perQ[id]
		qs.CorrectRate = round2(float64(qs.Correct) / n * 100)
		summary.Questions = append(summary.Questions, *qs)
	}
	return summary
}

func writeSummarySheet(f *excelize.File, summary *models.TeacherResultsSummary) error {
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Test", summary.TestID},
		{"Total attempts", summary.TotalAttempts},
		{"Average score (%)", summary.AverageScore},
		{"Pass rate (%)", summary.PassRate},
		{"Highest (%)", summary.HighestPercentage},
		{"Lowest (%)", summary.LowestPercentage},
		{},
		{"Question", "Prompt", "Answered", "Correct", "Correct rate (%)"},
	}
	for _, q := range summary.Questions {
		rows = append(rows, []interface{}{q.QuestionID, q.Prompt, q.Answered, q.Correct, q.CorrectRate})
	}
	return writeRows(f, summarySheet, rows)
}

func writeResultsSheet(f *excelize.File, attempts []*models.Attempt) error {
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Attempt", "Student", "Status", "Started at", "Submitted at", "Score", "Max score", "Percentage", "Passed"},
	}
	for _, a := range attempts {
		row := []interface{}{a.ID, a.StudentID, string(a.Phase()), a.StartedAt.UTC().Format("2006-01-02 15:04:05")}
		if a.SubmittedAt != nil {
			row = append(row, a.SubmittedAt.UTC().Format("2006-01-02 15:04:05"))
		} else {
			row = append(row, "")
		}
		if r := a.Result; r != nil {
			row = append(row, r.Score, r.MaxScore, round2(r.Percentage), r.Passed)
		}
		rows = append(rows, row)
	}
	return writeRows(f, resultsSheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
