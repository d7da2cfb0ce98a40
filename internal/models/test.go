package models

import (
	"sort"
	"time"
)

type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestPublished TestStatus = "published"
	TestArchived  TestStatus = "archived"
)

type Test struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	Title          string     `json:"title" gorm:"not null;size:200"`
	Description    *string    `json:"description" gorm:"type:text"`
	Status         TestStatus `json:"status" gorm:"not null;default:draft;index;size:16"`
	TimeLimitSec   int        `json:"time_limit_sec" gorm:"not null"`
	PassingPercent int        `json:"passing_percent" gorm:"not null;default:0"`
	CreatedBy      string     `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE"`
}

// TotalPoints is derived from the questions and never stored.
func (t *Test) TotalPoints() int {
	total := 0
	for _, q := range t.Questions {
		total += q.Points
	}
	return total
}

// SortQuestions orders questions by position, keeping insertion order for ties.
func (t *Test) SortQuestions() {
	sort.SliceStable(t.Questions, func(i, j int) bool {
		return t.Questions[i].Position < t.Questions[j].Position
	})
}

func (t *Test) Question(id string) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i]
		}
	}
	return nil
}

// TestView is what a student sees when an attempt starts.
type TestView struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  *string        `json:"description,omitempty"`
	TimeLimitSec int            `json:"time_limit_sec"`
	TotalPoints  int            `json:"total_points"`
	Questions    []QuestionView `json:"questions"`
}
