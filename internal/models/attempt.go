package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptGraded     AttemptStatus = "graded"
	AttemptCancelled  AttemptStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions back to
// in_progress. Attempts are never deleted; they leave circulation through a
// terminal status.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptGraded || s == AttemptCancelled
}

type ExamAttempt struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	UserID     string        `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_user_active_attempt,where:status = 'in_progress'"`
	TemplateID uint          `json:"template_id" gorm:"not null;index"`
	Status     AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	DurationSeconds int        `json:"duration_seconds" gorm:"not null"`
	StartedAt       time.Time  `json:"started_at" gorm:"not null"`
	LastActivityAt  time.Time  `json:"last_activity_at" gorm:"not null"`
	CompletedAt     *time.Time `json:"completed_at"`

	// Scoring. Score is on a fixed 0-10 scale, two decimal places.
	Score          float64 `json:"score"`
	Percentage     int     `json:"percentage"`
	Passed         bool    `json:"passed"`
	PassingScore   int     `json:"passing_score" gorm:"default:70"` // percent, copied from template at start
	CorrectCount   int     `json:"correct_count"`
	IncorrectCount int     `json:"incorrect_count"`
	SkippedCount   int     `json:"skipped_count"`
	TotalQuestions int     `json:"total_questions"`

	// Optimistic concurrency. Every mutating write compares and bumps this;
	// a mismatch means another request won the race.
	Version int64 `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Template  ExamTemplate      `json:"template" gorm:"foreignKey:TemplateID"`
	Questions []AttemptQuestion `json:"questions" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

type AttemptQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_attempt_question"`
	Position   int  `json:"position" gorm:"not null"`

	// UserAnswer holds the normalized submission. Nil means unanswered.
	UserAnswer datatypes.JSON `json:"user_answer" gorm:"type:jsonb"`

	// IsCorrect is nil while ungraded (essay pending manual review) or
	// unanswered.
	IsCorrect *bool   `json:"is_correct"`
	Score     float64 `json:"score"`

	// OptionOrder records the per-attempt shuffled option ids for choice
	// questions so the client renders the same ordering on resume.
	OptionOrder datatypes.JSON `json:"option_order" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt  ExamAttempt `json:"-" gorm:"foreignKey:AttemptID"`
	Question Question    `json:"question" gorm:"foreignKey:QuestionID"`
}

func (AttemptQuestion) TableName() string {
	return "attempt_questions"
}
