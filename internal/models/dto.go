package models

import "time"

type TestCreateRequest struct {
	Title          string                  `json:"title" yaml:"title" validate:"required,test_title"`
	Description    *string                 `json:"description" yaml:"description" validate:"omitempty,max=1000"`
	TimeLimitSec   int                     `json:"time_limit_sec" yaml:"time_limit_sec" validate:"required,time_limit_sec"`
	PassingPercent int                     `json:"passing_percent" yaml:"passing_percent" validate:"passing_percent"`
	Questions      []QuestionCreateRequest `json:"questions" yaml:"questions" validate:"omitempty,max=200,dive"`
}

type TestUpdateRequest struct {
	Title          *string `json:"title" validate:"omitempty,test_title"`
	Description    *string `json:"description" validate:"omitempty,max=1000"`
	TimeLimitSec   *int    `json:"time_limit_sec" validate:"omitempty,time_limit_sec"`
	PassingPercent *int    `json:"passing_percent" validate:"omitempty,passing_percent"`
}

type QuestionCreateRequest struct {
	Type             QuestionType `json:"type" yaml:"type" validate:"required,question_type"`
	Prompt           string       `json:"prompt" yaml:"prompt" validate:"required,min=1,max=2000"`
	Points           int          `json:"points" yaml:"points" validate:"required,min=1,max=1000"`
	Position         *int         `json:"position" yaml:"position" validate:"omitempty,min=0"`
	Options          []Option     `json:"options" yaml:"options" validate:"omitempty,max=20"`
	CorrectOptionIDs []string     `json:"correct_option_ids" yaml:"correct_option_ids"`
	ExpectedText     string       `json:"expected_text" yaml:"expected_text" validate:"max=500"`
	ExpectedNumber   *float64     `json:"expected_number" yaml:"expected_number"`
	Tolerance        float64      `json:"tolerance" yaml:"tolerance" validate:"min=0"`
	Explanation      *string      `json:"explanation" yaml:"explanation" validate:"omitempty,max=2000"`
}

type StartAttemptRequest struct {
	TestID string `json:"test_id" validate:"required"`
}

type RecordAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     Answer `json:"answer"`
}

type SubmitAttemptRequest struct {
	AttemptID string `json:"-"`
	// Answers, when present, replace the recorded ones before scoring.
	Answers AnswerSet `json:"answers"`
}

type StartAttemptResponse struct {
	Attempt AttemptView `json:"attempt"`
	Test    TestView    `json:"test"`
	Resumed bool        `json:"resumed"`
}

type TimeRemainingResponse struct {
	AttemptID        string    `json:"attempt_id"`
	RemainingSeconds int       `json:"remaining_seconds"`
	ExpiresAt        time.Time `json:"expires_at"`
}
