package services

import (
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestCalculateQuestionScore(t *testing.T) {
	if got := CalculateQuestionScore(10, boolPtr(true)); got != 10 {
		t.Errorf("correct answer: expected 10, got %v", got)
	}
	if got := CalculateQuestionScore(10, boolPtr(false)); got != 0 {
		t.Errorf("incorrect answer: expected 0, got %v", got)
	}
	if got := CalculateQuestionScore(10, nil); got != 0 {
		t.Errorf("ungraded answer: expected 0, got %v", got)
	}
}

func TestCalculateExamScore(t *testing.T) {
	answered := datatypes.JSON(`"a"`)

	t.Run("mixed outcomes", func(t *testing.T) {
		items := []*models.AttemptQuestion{
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(false), UserAnswer: answered},
			{}, // skipped
		}

		score := CalculateExamScore(items, 70)
		if score.CorrectCount != 2 || score.IncorrectCount != 1 || score.SkippedCount != 1 {
			t.Fatalf("unexpected classification: %+v", score)
		}
		if score.Score != 5.00 {
			t.Errorf("expected score 5.00, got %v", score.Score)
		}
		if score.Percentage != 50 {
			t.Errorf("expected percentage 50, got %d", score.Percentage)
		}
		if score.Passed {
			t.Error("50%% should not pass with a 70%% threshold")
		}
	})

	t.Run("passing", func(t *testing.T) {
		items := []*models.AttemptQuestion{
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(false), UserAnswer: answered},
		}

		score := CalculateExamScore(items, 70)
		if score.Percentage != 75 || !score.Passed {
			t.Errorf("expected 75%% pass, got %d passed=%v", score.Percentage, score.Passed)
		}
		if score.Score != 7.5 {
			t.Errorf("expected score 7.5, got %v", score.Score)
		}
	})

	t.Run("pending essay counts as incorrect", func(t *testing.T) {
		items := []*models.AttemptQuestion{
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: nil, UserAnswer: answered}, // answered, awaiting manual grading
		}

		score := CalculateExamScore(items, 70)
		if score.CorrectCount != 1 || score.IncorrectCount != 1 || score.SkippedCount != 0 {
			t.Errorf("unexpected classification: %+v", score)
		}
	})

	t.Run("empty attempt", func(t *testing.T) {
		score := CalculateExamScore(nil, 70)
		if score.Score != 0 || score.Percentage != 0 || score.Passed {
			t.Errorf("empty attempt should score zero: %+v", score)
		}
	})

	t.Run("rounding half up", func(t *testing.T) {
		items := []*models.AttemptQuestion{
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(false), UserAnswer: answered},
			{IsCorrect: boolPtr(false), UserAnswer: answered},
		}

		score := CalculateExamScore(items, 70)
		if score.Score != 3.33 {
			t.Errorf("expected score 3.33, got %v", score.Score)
		}
		if score.Percentage != 33 {
			t.Errorf("expected percentage 33, got %d", score.Percentage)
		}
	})

	t.Run("zero threshold falls back to default", func(t *testing.T) {
		items := []*models.AttemptQuestion{
			{IsCorrect: boolPtr(true), UserAnswer: answered},
			{IsCorrect: boolPtr(false), UserAnswer: answered},
		}

		score := CalculateExamScore(items, 0)
		if score.Passed {
			t.Error("50%% should not pass the default 70%% threshold")
		}
	})
}

func TestExpirationHelpers(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)

	if !IsExpired(start, 60) {
		t.Error("attempt 90s into a 60s duration should be expired")
	}
	if IsExpired(start, 600) {
		t.Error("attempt 90s into a 600s duration should not be expired")
	}

	if got := RemainingSeconds(start, 60); got != 0 {
		t.Errorf("expired attempt should have 0 remaining, got %d", got)
	}
	remaining := RemainingSeconds(start, 600)
	if remaining <= 0 || remaining > 510 {
		t.Errorf("unexpected remaining seconds: %d", remaining)
	}
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Now().Add(-2 * time.Minute)
	completed := start.Add(30 * time.Second)

	if got := ElapsedSeconds(start, &completed); got != 30 {
		t.Errorf("expected 30s elapsed, got %d", got)
	}
	if got := ElapsedSeconds(start, nil); got < 119 || got > 121 {
		t.Errorf("running attempt elapsed should be ~120s, got %d", got)
	}

	future := start.Add(-time.Minute)
	if got := ElapsedSeconds(start, &future); got != 0 {
		t.Errorf("elapsed should never be negative, got %d", got)
	}
}
