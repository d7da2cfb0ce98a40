package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptExpired    AttemptStatus = "expired"
)

type Attempt struct {
	ID          string        `json:"id" gorm:"primaryKey;size:36"`
	TestID      string        `json:"test_id" gorm:"not null;index;size:36"`
	StudentID   string        `json:"student_id" gorm:"not null;index;size:255"`
	Status      AttemptStatus `json:"status" gorm:"not null;default:in_progress;index;size:16"`
	StartedAt   time.Time     `json:"started_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	SubmittedAt *time.Time    `json:"submitted_at"`

	// Snapshot of the test taken at start; later edits to the test do not reach it.
	PassingPercent int                           `json:"passing_percent"`
	Questions      datatypes.JSONSlice[Question] `json:"-" gorm:"type:jsonb"`

	Answers AnswerSet      `json:"answers" gorm:"type:jsonb"`
	Result  *AttemptResult `json:"result,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Phase is the externally reported status. A submitted attempt that carries a
// result is reported as graded.
func (a *Attempt) Phase() AttemptStatus {
	if a.Status == AttemptSubmitted && a.Result != nil {
		return AttemptGraded
	}
	return a.Status
}

// IsOpen reports whether answers may still be recorded at now.
func (a *Attempt) IsOpen(now time.Time) bool {
	return a.Status == AttemptInProgress && !now.After(a.ExpiresAt)
}

func (a *Attempt) IsPastDeadline(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// RemainingSeconds floors the time left until ExpiresAt, never below zero.
func (a *Attempt) RemainingSeconds(now time.Time) int {
	d := a.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func (a *Attempt) Question(id string) *Question {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i]
		}
	}
	return nil
}

// Clone returns a deep copy, used by stores that hand out values.
func (a *Attempt) Clone() *Attempt {
	c := *a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		c.SubmittedAt = &t
	}
	if a.Questions != nil {
		c.Questions = append(datatypes.JSONSlice[Question](nil), a.Questions...)
	}
	if a.Answers != nil {
		c.Answers = a.Answers.Clone()
	}
	if a.Result != nil {
		r := *a.Result
		r.Breakdown = append([]QuestionBreakdown(nil), a.Result.Breakdown...)
		c.Result = &r
	}
	return &c
}

// AttemptView is the student-facing state of an attempt.
type AttemptView struct {
	ID               string         `json:"id"`
	TestID           string         `json:"test_id"`
	Status           AttemptStatus  `json:"status"`
	StartedAt        time.Time      `json:"started_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
	SubmittedAt      *time.Time     `json:"submitted_at,omitempty"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Answers          AnswerSet      `json:"answers"`
	Questions        []QuestionView `json:"questions"`
}

func (a *Attempt) View(now time.Time) AttemptView {
	v := AttemptView{
		ID:          a.ID,
		TestID:      a.TestID,
		Status:      a.Phase(),
		StartedAt:   a.StartedAt,
		ExpiresAt:   a.ExpiresAt,
		SubmittedAt: a.SubmittedAt,
		Answers:     a.Answers.Clone(),
		Questions:   make([]QuestionView, 0, len(a.Questions)),
	}
	if a.Status == AttemptInProgress {
		v.RemainingSeconds = a.RemainingSeconds(now)
	}
	for i := range a.Questions {
		v.Questions = append(v.Questions, a.Questions[i].View())
	}
	return v
}
