package services

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// ===== PER-TYPE GRADERS =====

func gradeSingle(q *models.Question, answer models.Answer) bool {
	if len(q.Options) == 0 || len(q.CorrectOptionIDs) != 1 {
		return false
	}
	// More than one selection is never a correct single answer.
	if len(answer.OptionIDs) > 0 {
		return false
	}
	return answer.OptionID != "" && answer.OptionID == q.CorrectOptionIDs[0]
}

// gradeMultiple requires the selected set to equal the correct set. Order and
// duplicates do not matter; there is no partial credit.
func gradeMultiple(q *models.Question, answer models.Answer) bool {
	if len(q.Options) == 0 || len(q.CorrectOptionIDs) == 0 {
		return false
	}

	want := toSet(q.CorrectOptionIDs)
	got := toSet(answer.OptionIDs)
	if len(want) != len(got) {
		return false
	}
	for id := range got {
		if _, ok := want[id]; !ok {
			return false
		}
	}
	return true
}

// gradeShort compares after removing every whitespace rune and lower-casing,
// so "P a r i s" matches "Paris".
func gradeShort(q *models.Question, answer models.Answer) bool {
	expected := normalizeShortAnswer(q.ExpectedText)
	if expected == "" {
		return false
	}
	return normalizeShortAnswer(answer.Text) == expected
}

func gradeNumeric(q *models.Question, answer models.Answer) bool {
	if q.ExpectedNumber == nil {
		return false
	}
	got, ok := answer.Number()
	if !ok || math.IsNaN(got) || math.IsInf(got, 0) {
		return false
	}
	tolerance := q.Tolerance
	if tolerance < 0 || math.IsNaN(tolerance) {
		tolerance = 0
	}
	return withinTolerance(got, *q.ExpectedNumber, tolerance)
}

// withinTolerance treats differences that exceed the tolerance only by float
// rounding noise as inside it, so 9.5 against 10±0.5 stays correct.
func withinTolerance(got, expected, tolerance float64) bool {
	diff := math.Abs(got - expected)
	if diff <= tolerance {
		return true
	}
	const epsilon = 1e-9
	scale := math.Max(1, math.Max(math.Abs(got), math.Abs(expected)))
	return diff-tolerance <= epsilon*scale
}

func normalizeShortAnswer(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// correctAnswerText renders the expected answer for the result breakdown.
func correctAnswerText(q *models.Question) string {
	switch q.Type {
	case models.QuestionSingle, models.QuestionMultiple:
		parts := make([]string, 0, len(q.CorrectOptionIDs))
		for _, id := range q.CorrectOptionIDs {
			parts = append(parts, q.OptionText(id))
		}
		return strings.Join(parts, ", ")
	case models.QuestionShort:
		return q.ExpectedText
	case models.QuestionNumeric:
		if q.ExpectedNumber == nil {
			return ""
		}
		s := strconv.FormatFloat(*q.ExpectedNumber, 'f', -1, 64)
		if q.Tolerance > 0 {
			s += " ± " + strconv.FormatFloat(q.Tolerance, 'f', -1, 64)
		}
		return s
	}
	return ""
}
