package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type QuestionBreakdown struct {
	QuestionID        string  `json:"question_id"`
	Prompt            string  `json:"prompt"`
	Correct           bool    `json:"correct"`
	Answered          bool    `json:"answered"`
	PointsEarned      int     `json:"points_earned"`
	PointsMax         int     `json:"points_max"`
	UserAnswerText    string  `json:"user_answer_text"`
	CorrectAnswerText string  `json:"correct_answer_text"`
	Explanation       *string `json:"explanation,omitempty"`
}

// AttemptResult is written once when an attempt is submitted and never changes.
type AttemptResult struct {
	Score      int                 `json:"score"`
	MaxScore   int                 `json:"max_score"`
	Percentage float64             `json:"percentage"`
	Passed     bool                `json:"passed"`
	GradedAt   time.Time           `json:"graded_at"`
	Breakdown  []QuestionBreakdown `json:"breakdown"`
}

func (r *AttemptResult) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *AttemptResult) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New(fmt.Sprint("failed to scan attempt result: ", value))
	}
	return json.Unmarshal(data, r)
}

func (AttemptResult) GormDataType() string {
	return "jsonb"
}

type QuestionSummary struct {
	QuestionID  string  `json:"question_id"`
	Prompt      string  `json:"prompt"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
	CorrectRate float64 `json:"correct_rate"`
}

type TeacherResultsSummary struct {
	TestID            string            `json:"test_id"`
	TotalAttempts     int               `json:"total_attempts"`
	AverageScore      float64           `json:"average_score"`
	PassRate          float64           `json:"pass_rate"`
	HighestPercentage float64           `json:"highest_percentage"`
	LowestPercentage  float64           `json:"lowest_percentage"`
	Questions         []QuestionSummary `json:"questions"`
}
