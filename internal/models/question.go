package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Question is an immutable definition supplied by the question bank. The
// attempt core reads it; it never writes one.
type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null" validate:"required"`
	Points int          `json:"points" gorm:"default:10" validate:"min=1,max=100"`

	// Options for choice questions, stored as jsonb ([]ChoiceOption).
	Options datatypes.JSON `json:"options" gorm:"type:jsonb"`

	// Answer holds the type-specific correct-answer key as jsonb:
	// TrueFalseKey, ShortAnswerKey, or a raw value for the default case.
	// Choice questions carry correctness on their options instead.
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	CategoryID *uint           `json:"category_id" gorm:"index"`
	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`

	Explanation *string   `json:"explanation" gorm:"type:text"`
	CreatedBy   string    `json:"created_by" gorm:"not null;size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Category *QuestionCategory `json:"category" gorm:"foreignKey:CategoryID"`
}

func (Question) TableName() string {
	return "questions"
}

type QuestionCategory struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:100" validate:"required,max=100"`
	Description *string `json:"description" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuestionCategory) TableName() string {
	return "question_categories"
}

// ===== ANSWER KEY SCHEMAS =====

type ChoiceOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

type TrueFalseKey struct {
	CorrectAnswer bool `json:"correct_answer"`
}

type ShortAnswerKey struct {
	AcceptedAnswers []string `json:"accepted_answers"`
}
