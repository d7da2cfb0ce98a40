package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
	QuestionShort    QuestionType = "short"
	QuestionNumeric  QuestionType = "numeric"
)

// IsChoice reports whether answers to this type reference option ids.
func (t QuestionType) IsChoice() bool {
	return t == QuestionSingle || t == QuestionMultiple
}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingle, QuestionMultiple, QuestionShort, QuestionNumeric:
		return true
	}
	return false
}

type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

type Question struct {
	ID       string       `json:"id" gorm:"primaryKey;size:36"`
	TestID   string       `json:"test_id" gorm:"not null;index;size:36"`
	Position int          `json:"position" gorm:"not null;default:0"`
	Type     QuestionType `json:"type" gorm:"not null;size:16"`
	Prompt   string       `json:"prompt" gorm:"type:text;not null"`
	Points   int          `json:"points" gorm:"not null;default:1"`

	// Choice questions only
	Options datatypes.JSONSlice[Option] `json:"options" gorm:"type:jsonb"`

	// Correctness data, one representation per type
	CorrectOptionIDs datatypes.JSONSlice[string] `json:"correct_option_ids,omitempty" gorm:"type:jsonb"`
	ExpectedText     string                      `json:"expected_text,omitempty" gorm:"type:text"`
	ExpectedNumber   *float64                    `json:"expected_number,omitempty"`
	Tolerance        float64                     `json:"tolerance,omitempty" gorm:"default:0"`

	Explanation *string   `json:"explanation,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OptionText returns the display text of an option, or the id itself when unknown.
func (q *Question) OptionText(id string) string {
	for _, o := range q.Options {
		if o.ID == id {
			return o.Text
		}
	}
	return id
}

func (q *Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// QuestionView is the student-facing projection of a question. It never carries
// correctness data.
type QuestionView struct {
	ID       string       `json:"id"`
	Position int          `json:"position"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	Points   int          `json:"points"`
	Options  []Option     `json:"options,omitempty"`
}

func (q *Question) View() QuestionView {
	v := QuestionView{
		ID:       q.ID,
		Position: q.Position,
		Type:     q.Type,
		Prompt:   q.Prompt,
		Points:   q.Points,
	}
	if len(q.Options) > 0 {
		v.Options = append([]Option(nil), q.Options...)
	}
	return v
}
