package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// TopicAttemptEvents is the Kafka topic attempt lifecycle events are
// published to.
const TopicAttemptEvents = "exam.attempt.events"

type EventType string

const (
	AttemptStarted   EventType = "attempt.started"
	AttemptCompleted EventType = "attempt.completed"
	AttemptExpired   EventType = "attempt.expired"
	AttemptCancelled EventType = "attempt.cancelled"
)

// AttemptEvent is the envelope for every attempt lifecycle notification.
type AttemptEvent struct {
	EventID    string               `json:"event_id"`
	Type       EventType            `json:"type"`
	AttemptID  uint                 `json:"attempt_id"`
	UserID     string               `json:"user_id"`
	TemplateID uint                 `json:"template_id"`
	Status     models.AttemptStatus `json:"status"`
	Score      *float64             `json:"score,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// NewAttemptEvent builds an event for the attempt's current state.
func NewAttemptEvent(eventType EventType, attempt *models.ExamAttempt) *AttemptEvent {
	event := &AttemptEvent{
		EventID:    uuid.New().String(),
		Type:       eventType,
		AttemptID:  attempt.ID,
		UserID:     attempt.UserID,
		TemplateID: attempt.TemplateID,
		Status:     attempt.Status,
		OccurredAt: time.Now(),
	}
	if attempt.Status.IsTerminal() && attempt.Status != models.AttemptCancelled {
		score := attempt.Score
		event.Score = &score
	}
	return event
}

// EventPublisher delivers attempt lifecycle events to interested consumers.
// Publishing is best-effort from the caller's perspective: attempt state is
// already committed when an event goes out.
type EventPublisher interface {
	PublishAttemptEvent(ctx context.Context, event *AttemptEvent) error
	Close() error
}
