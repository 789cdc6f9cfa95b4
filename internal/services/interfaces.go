package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// ===== REQUEST DTOS =====

type StartAttemptRequest struct {
	TemplateID uint `json:"template_id" validate:"required,min=1"`
}

type SubmitAnswerRequest struct {
	QuestionID      uint        `json:"question_id" validate:"required,min=1"`
	Answer          interface{} `json:"answer" validate:"required"`
	IdempotencyKey  *string     `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	ExpectedVersion *int64      `json:"expected_version,omitempty" validate:"omitempty,min=1"`
}

type HistoryRequest struct {
	Page   int    `json:"page" form:"page"`
	Limit  int    `json:"limit" form:"limit"`
	Status string `json:"status" form:"status" validate:"omitempty,attempt_status"`
	SortBy string `json:"sort_by" form:"sort_by" validate:"omitempty,oneof=started_at completed_at score"`
	Order  string `json:"order" form:"order" validate:"omitempty,oneof=asc desc"`
}

// ===== RESPONSE DTOS =====

// AnswerOutcome is what a submission returns, and what the idempotency
// guard replays byte for byte for duplicate submissions.
type AnswerOutcome struct {
	QuestionID       uint            `json:"question_id"`
	AttemptCompleted bool            `json:"attempt_completed"`
	IsCorrect        *bool           `json:"is_correct,omitempty"`
	SubmittedAnswer  json.RawMessage `json:"submitted_answer,omitempty"`
	CorrectAnswer    json.RawMessage `json:"correct_answer,omitempty"`
	Explanation      *string         `json:"explanation,omitempty"`
	Feedback         *string         `json:"feedback,omitempty"`
	Version          int64           `json:"version"`
}

// AttemptQuestionView is a question as shown to the student mid-attempt.
// It never carries correctness flags or the answer key.
type AttemptQuestionView struct {
	QuestionID uint                 `json:"question_id"`
	Position   int                  `json:"position"`
	Type       models.QuestionType  `json:"type"`
	Text       string               `json:"text"`
	Points     int                  `json:"points"`
	Options    []SanitizedOption    `json:"options,omitempty"`
	UserAnswer json.RawMessage      `json:"user_answer,omitempty"`
	Answered   bool                 `json:"answered"`
	Difficulty models.DifficultyLevel `json:"difficulty,omitempty"`
}

// SanitizedOption is a choice option with the IsCorrect flag stripped.
type SanitizedOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type AttemptResponse struct {
	*models.ExamAttempt
	RemainingSeconds int                   `json:"remaining_seconds"`
	Questions        []AttemptQuestionView `json:"questions"`
}

type AttemptSummary struct {
	ID             uint                 `json:"id"`
	TemplateID     uint                 `json:"template_id"`
	TemplateTitle  string               `json:"template_title,omitempty"`
	Status         models.AttemptStatus `json:"status"`
	Score          float64              `json:"score"`
	Percentage     int                  `json:"percentage"`
	Passed         bool                 `json:"passed"`
	TotalQuestions int                  `json:"total_questions"`
	CorrectCount   int                  `json:"correct_count"`
	IncorrectCount int                  `json:"incorrect_count"`
	SkippedCount   int                  `json:"skipped_count"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	DurationTaken  int                  `json:"duration_taken_seconds"`
}

type HistoryPage struct {
	Attempts   []AttemptSummary `json:"attempts"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

// QuestionResult is one question inside a detailed result view. Fields the
// template's visibility settings hide stay nil and are omitted from the
// serialized form entirely.
type QuestionResult struct {
	QuestionID    uint                `json:"question_id"`
	Position      int                 `json:"position"`
	Type          models.QuestionType `json:"type"`
	Text          string              `json:"text"`
	Points        int                 `json:"points"`
	Score         float64             `json:"score"`
	IsCorrect     *bool               `json:"is_correct,omitempty"`
	UserAnswer    json.RawMessage     `json:"user_answer,omitempty"`
	CorrectAnswer json.RawMessage     `json:"correct_answer,omitempty"`
	Explanation   *string             `json:"explanation,omitempty"`
}

type ResultView struct {
	AttemptID      uint                 `json:"attempt_id"`
	TemplateID     uint                 `json:"template_id"`
	TemplateTitle  string               `json:"template_title,omitempty"`
	Status         models.AttemptStatus `json:"status"`
	Score          float64              `json:"score"`
	Percentage     int                  `json:"percentage"`
	Passed         bool                 `json:"passed"`
	PassingScore   int                  `json:"passing_score"`
	CorrectCount   int                  `json:"correct_count"`
	IncorrectCount int                  `json:"incorrect_count"`
	SkippedCount   int                  `json:"skipped_count"`
	TotalQuestions int                  `json:"total_questions"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	DurationTaken  int                  `json:"duration_taken_seconds"`
	Questions      []QuestionResult     `json:"questions,omitempty"`
}

// ===== SERVICE INTERFACES =====

// AttemptService manages the examination attempt lifecycle.
type AttemptService interface {
	Start(ctx context.Context, userID string, req StartAttemptRequest) (*AttemptResponse, error)
	SubmitAnswer(ctx context.Context, userID string, attemptID uint, req SubmitAnswerRequest) (*AnswerOutcome, error)
	// Complete returns a summary only; the per-question breakdown stays
	// behind GetDetailedResults and its visibility policy.
	Complete(ctx context.Context, userID string, attemptID uint) (*AttemptSummary, error)
	Cancel(ctx context.Context, userID string, attemptID uint) error
	// GetCurrent returns (nil, nil) when the user has nothing to resume.
	GetCurrent(ctx context.Context, userID string) (*AttemptResponse, error)
	GetHistory(ctx context.Context, userID string, req HistoryRequest) (*HistoryPage, error)
	GetDetailedResults(ctx context.Context, userID string, attemptID uint) (*ResultView, error)
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// AuthorizationService answers whether a user may act on a resource.
type AuthorizationService interface {
	CanUseTemplate(ctx context.Context, userID string, template *models.ExamTemplate) error
}

// ExportService renders attempt history as downloadable artifacts.
type ExportService interface {
	ExportHistory(ctx context.Context, userID string) ([]byte, string, error)
}
