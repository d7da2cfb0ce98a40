package services

import (
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// ScoreAttempt grades answers against a question snapshot. It is pure: the same
// inputs always produce the same result, and malformed questions or answers
// score as incorrect instead of failing.
//
// Answers keyed by ids that are not in the snapshot are ignored.
func ScoreAttempt(questions []models.Question, answers models.AnswerSet, passingPercent int, gradedAt time.Time) *models.AttemptResult {
	result := &models.AttemptResult{
		GradedAt:  gradedAt,
		Breakdown: make([]models.QuestionBreakdown, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		answer, answered := answers[q.ID]
		correct := answered && IsCorrect(q, answer)

		earned := 0
		if correct {
			earned = q.Points
		}
		result.Score += earned
		result.MaxScore += q.Points

		item := models.QuestionBreakdown{
			QuestionID:        q.ID,
			Prompt:            q.Prompt,
			Correct:           correct,
			Answered:          answered,
			PointsEarned:      earned,
			PointsMax:         q.Points,
			CorrectAnswerText: correctAnswerText(q),
			Explanation:       q.Explanation,
		}
		if answered {
			item.UserAnswerText = answer.Display(q)
		}
		result.Breakdown = append(result.Breakdown, item)
	}

	result.Percentage = percentage(result.Score, result.MaxScore)
	result.Passed = result.Percentage >= float64(passingPercent)
	return result
}

// IsCorrect applies the comparison rule of the question's type. An answer
// whose variant does not match the question type is never correct.
func IsCorrect(q *models.Question, answer models.Answer) bool {
	if answer.Type != q.Type {
		return false
	}

	switch q.Type {
	case models.QuestionSingle:
		return gradeSingle(q, answer)
	case models.QuestionMultiple:
		return gradeMultiple(q, answer)
	case models.QuestionShort:
		return gradeShort(q, answer)
	case models.QuestionNumeric:
		return gradeNumeric(q, answer)
	default:
		return false
	}
}

func percentage(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return float64(score) / float64(maxScore) * 100
}
