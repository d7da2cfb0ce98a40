package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "quiz-attempt-service"
	EventVersion = "1.0"

	TopicAttempts = "quiz.attempts"
)

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptExpired   = "attempt.expired"
	EventTestPublished    = "test.published"
)

// Event is the envelope every message on the bus carries.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type AttemptEventData struct {
	AttemptID     string   `json:"attempt_id"`
	TestID        string   `json:"test_id"`
	StudentID     string   `json:"student_id"`
	Score         *int     `json:"score,omitempty"`
	MaxScore      *int     `json:"max_score,omitempty"`
	Percentage    *float64 `json:"percentage,omitempty"`
	Passed        *bool    `json:"passed,omitempty"`
	AutoSubmitted bool     `json:"auto_submitted,omitempty"`
}

type TestEventData struct {
	TestID    string `json:"test_id"`
	CreatedBy string `json:"created_by"`
}

func NewEvent(eventType string, data interface{}) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}, nil
}

// DecodeData unmarshals the event payload into dest.
func (e *Event) DecodeData(dest interface{}) error {
	return json.Unmarshal(e.Data, dest)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}
