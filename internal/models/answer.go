package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Answer is a tagged variant: Type selects which payload field is meaningful.
type Answer struct {
	Type      QuestionType `json:"type" validate:"required,question_type"`
	OptionID  string       `json:"option_id,omitempty"`
	OptionIDs []string     `json:"option_ids,omitempty"`
	Text      string       `json:"text,omitempty"`
	Value     *float64     `json:"value,omitempty"`
}

func SingleAnswer(optionID string) Answer {
	return Answer{Type: QuestionSingle, OptionID: optionID}
}

func MultipleAnswer(optionIDs ...string) Answer {
	return Answer{Type: QuestionMultiple, OptionIDs: optionIDs}
}

func ShortAnswer(text string) Answer {
	return Answer{Type: QuestionShort, Text: text}
}

func NumericAnswer(v float64) Answer {
	return Answer{Type: QuestionNumeric, Value: &v}
}

// Number resolves the numeric payload. Numeric answers coming from a text input
// may carry the raw string instead of Value.
func (a Answer) Number() (float64, bool) {
	if a.Value != nil {
		return *a.Value, true
	}
	s := strings.TrimSpace(a.Text)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Display renders the answer for result breakdowns.
func (a Answer) Display(q *Question) string {
	switch a.Type {
	case QuestionSingle:
		if a.OptionID == "" {
			return ""
		}
		if q != nil {
			return q.OptionText(a.OptionID)
		}
		return a.OptionID
	case QuestionMultiple:
		parts := make([]string, 0, len(a.OptionIDs))
		for _, id := range a.OptionIDs {
			if q != nil {
				parts = append(parts, q.OptionText(id))
			} else {
				parts = append(parts, id)
			}
		}
		return strings.Join(parts, ", ")
	case QuestionNumeric:
		if a.Value != nil {
			return strconv.FormatFloat(*a.Value, 'f', -1, 64)
		}
		return a.Text
	default:
		return a.Text
	}
}

// Clone returns a deep copy so stored answers never alias caller slices.
func (a Answer) Clone() Answer {
	c := a
	if a.OptionIDs != nil {
		c.OptionIDs = slices.Clone(a.OptionIDs)
	}
	if a.Value != nil {
		v := *a.Value
		c.Value = &v
	}
	return c
}

// AnswerSet maps question id to the latest answer. Stored as a jsonb column.
type AnswerSet map[string]Answer

func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

func (s AnswerSet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *AnswerSet) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*s = AnswerSet{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New(fmt.Sprint("failed to scan answer set: ", value))
	}
	out := AnswerSet{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

func (AnswerSet) GormDataType() string {
	return "jsonb"
}
