package services

import (
	"math"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// Pure scoring and timing functions for exam attempts. Everything here is
// deterministic given its inputs; time-dependent helpers take the relevant
// timestamps explicitly.

// DefaultPassingScore is the pass threshold in percent when a template does
// not override it.
const DefaultPassingScore = 70

// CalculateQuestionScore awards the question's full point value for a correct
// verdict and nothing otherwise. There is no partial credit.
func CalculateQuestionScore(points int, isCorrect *bool) float64 {
	if isCorrect != nil && *isCorrect {
		return float64(points)
	}
	return 0
}

// ExamScore is the aggregate outcome of one pass over an attempt's questions.
type ExamScore struct {
	Score          float64 // 0-10 scale, two decimal places
	Percentage     int
	Passed         bool
	CorrectCount   int
	IncorrectCount int
	SkippedCount   int
	TotalQuestions int
}

// CalculateExamScore classifies every question exactly once: correct (verdict
// true), incorrect (verdict false, or answered but not yet graded, such as a
// pending essay), or skipped (no answer and no verdict). An empty attempt
// scores zero rather than dividing by zero.
func CalculateExamScore(items []*models.AttemptQuestion, passingScore int) ExamScore {
	if passingScore <= 0 {
		passingScore = DefaultPassingScore
	}

	result := ExamScore{TotalQuestions: len(items)}
	for _, item := range items {
		switch {
		case item.IsCorrect != nil && *item.IsCorrect:
			result.CorrectCount++
		case item.IsCorrect != nil || len(item.UserAnswer) > 0:
			result.IncorrectCount++
		default:
			result.SkippedCount++
		}
	}

	if result.TotalQuestions == 0 {
		return result
	}

	ratio := float64(result.CorrectCount) / float64(result.TotalQuestions)
	result.Score = roundHalfUp(ratio*10, 2)
	result.Percentage = int(math.Floor(ratio*100 + 0.5))
	result.Passed = result.Percentage >= passingScore
	return result
}

// IsExpired reports whether the attempt's data-level deadline has passed.
func IsExpired(startedAt time.Time, durationSeconds int) bool {
	return time.Now().After(startedAt.Add(time.Duration(durationSeconds) * time.Second))
}

// RemainingSeconds returns the whole seconds left before expiration, never
// negative.
func RemainingSeconds(startedAt time.Time, durationSeconds int) int {
	deadline := startedAt.Add(time.Duration(durationSeconds) * time.Second)
	remaining := int(math.Floor(time.Until(deadline).Seconds()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ElapsedSeconds measures from start to completion, or to now for attempts
// still running. Never negative.
func ElapsedSeconds(startedAt time.Time, completedAt *time.Time) int {
	end := time.Now()
	if completedAt != nil {
		end = *completedAt
	}
	elapsed := int(end.Sub(startedAt).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// roundHalfUp rounds to the given number of decimal places with standard
// half-up behavior (0.005 -> 0.01).
func roundHalfUp(value float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Floor(value*shift+0.5) / shift
}
