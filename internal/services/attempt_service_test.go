package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-service/internal/events"
	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/utils"
	"github.com/SAP-F-2025/exam-service/internal/validator"
)

func newTestService(t *testing.T) (AttemptService, *fakeRepository, *events.MockEventPublisher) {
	t.Helper()

	slogLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	fake := newFakeRepository()
	publisher := events.NewMockEventPublisher(slogLogger)

	service := NewAttemptService(
		fake,
		validator.New(),
		utils.NewSlogLogger(slogLogger),
		publisher,
		NewMemoryIdempotencyGuard(time.Minute),
		NewAuthorizationService(fake.User()),
	)
	return service, fake, publisher
}

func mustJSON(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	encoded, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return datatypes.JSON(encoded)
}

// seedExam populates a student, three questions and an explicit-selection
// template covering each auto-gradable type.
func seedExam(t *testing.T, fake *fakeRepository) {
	t.Helper()

	fake.addUser(&models.User{ID: "student-1", Name: "Student One", Role: models.RoleStudent, Active: true})

	fake.addQuestion(&models.Question{
		ID: 1, Type: models.SingleChoice, Text: "Capital of France?", Points: 10,
		Options: mustJSON(t, []models.ChoiceOption{
			{ID: "a", Text: "Paris", IsCorrect: true, Order: 1},
			{ID: "b", Text: "Lyon", Order: 2},
		}),
		Explanation: strPtr("Paris has been the capital since 987."),
	})
	fake.addQuestion(&models.Question{
		ID: 2, Type: models.TrueFalse, Text: "The earth is round.", Points: 10,
		Answer: mustJSON(t, models.TrueFalseKey{CorrectAnswer: true}),
	})
	fake.addQuestion(&models.Question{
		ID: 3, Type: models.ShortAnswer, Text: "Chemical symbol for gold?", Points: 10,
		Answer: mustJSON(t, models.ShortAnswerKey{AcceptedAnswers: []string{"Au"}}),
	})

	noRandomize := false
	fake.addTemplate(&models.ExamTemplate{
		ID: 1, Title: "General Knowledge", QuestionCount: 3, DurationSeconds: 600,
		QuestionIDs:        mustJSON(t, []uint{1, 2, 3}),
		Randomize:          &noRandomize,
		PassingScore:       70,
		ShowCorrectAnswers: true, ShowExplanation: true, ShowScoreBreakdown: true,
		IsActive: true, CreatedBy: "teacher-1",
	})
}

func strPtr(s string) *string { return &s }

func startAttempt(t *testing.T, service AttemptService) *AttemptResponse {
	t.Helper()
	attempt, err := service.Start(context.Background(), "student-1", StartAttemptRequest{TemplateID: 1})
	if err != nil {
		t.Fatalf("failed to start attempt: %v", err)
	}
	return attempt
}

// ===== START =====

func TestStart(t *testing.T) {
	service, fake, publisher := newTestService(t)
	seedExam(t, fake)

	attempt := startAttempt(t, service)

	if attempt.Status != models.AttemptInProgress {
		t.Errorf("expected in_progress, got %s", attempt.Status)
	}
	if attempt.Version != 1 {
		t.Errorf("new attempt should have version 1, got %d", attempt.Version)
	}
	if attempt.PassingScore != 70 {
		t.Errorf("passing score should be copied from the template, got %d", attempt.PassingScore)
	}
	if len(attempt.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(attempt.Questions))
	}
	for i, question := range attempt.Questions {
		if question.Position != i+1 {
			t.Errorf("question %d has position %d", i, question.Position)
		}
		if question.Answered {
			t.Errorf("fresh question %d should be unanswered", question.QuestionID)
		}
	}
	if attempt.RemainingSeconds <= 0 || attempt.RemainingSeconds > 600 {
		t.Errorf("unexpected remaining seconds: %d", attempt.RemainingSeconds)
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.AttemptStarted {
		t.Errorf("expected one attempt.started event, got %v", published)
	}
}

func TestStart_ActiveAttemptExists(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)

	startAttempt(t, service)

	_, err := service.Start(context.Background(), "student-1", StartAttemptRequest{TemplateID: 1})
	if !errors.Is(err, ErrActiveAttemptExists) {
		t.Fatalf("expected ErrActiveAttemptExists, got %v", err)
	}
	if Classify(err) != KindConflict {
		t.Errorf("expected conflict kind, got %s", Classify(err))
	}
}

func TestStart_TemplateNotFound(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)

	_, err := service.Start(context.Background(), "student-1", StartAttemptRequest{TemplateID: 404})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestStart_InactiveTemplateHiddenFromStudents(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	fake.addUser(&models.User{ID: "teacher-1", Role: models.RoleTeacher, Active: true})
	fake.addTemplate(&models.ExamTemplate{
		ID: 2, Title: "Draft", QuestionCount: 3, DurationSeconds: 600,
		QuestionIDs: mustJSON(t, []uint{1, 2, 3}),
		IsActive:    false, CreatedBy: "teacher-1",
	})

	// A regular student cannot even learn the draft exists.
	_, err := service.Start(context.Background(), "student-1", StartAttemptRequest{TemplateID: 2})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	if Classify(err) != KindNotFound {
		t.Errorf("expected not_found kind, got %s", Classify(err))
	}

	// The author still can, for preview.
	if _, err := service.Start(context.Background(), "teacher-1", StartAttemptRequest{TemplateID: 2}); err != nil {
		t.Fatalf("creator preview should be allowed: %v", err)
	}
}

func TestStart_FinalizesAbandonedAttempt(t *testing.T) {
	service, fake, publisher := newTestService(t)
	seedExam(t, fake)

	first := startAttempt(t, service)

	// Age the attempt past the abandonment threshold.
	fake.mu.Lock()
	fake.attempts[first.ID].LastActivityAt = time.Now().Add(-10 * time.Minute)
	fake.mu.Unlock()

	second, err := service.Start(context.Background(), "student-1", StartAttemptRequest{TemplateID: 1})
	if err != nil {
		t.Fatalf("start after abandonment should succeed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new attempt")
	}

	old := fake.getAttempt(first.ID)
	if !old.Status.IsTerminal() {
		t.Errorf("abandoned attempt should be finalized, status %s", old.Status)
	}

	var sawExpired bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.AttemptExpired && event.AttemptID == first.ID {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Error("finalizing an abandoned attempt should publish attempt.expired")
	}
}

// ===== SUBMIT ANSWER =====

func TestSubmitAnswer(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)
	ctx := context.Background()

	outcome, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{
		QuestionID: 1,
		Answer:     "a",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.IsCorrect == nil || !*outcome.IsCorrect {
		t.Error("expected correct verdict")
	}
	if outcome.Version != 2 {
		t.Errorf("version should bump to 2, got %d", outcome.Version)
	}
	if len(outcome.CorrectAnswer) == 0 {
		t.Error("template shows correct answers, outcome should carry one")
	}
	if outcome.Explanation == nil {
		t.Error("template shows explanations, outcome should carry one")
	}

	// Resubmission overwrites the previous answer.
	outcome, err = service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{
		QuestionID: 1,
		Answer:     "b",
	})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if *outcome.IsCorrect {
		t.Error("overwritten answer should be graded fresh")
	}
	if outcome.Version != 3 {
		t.Errorf("version should bump to 3, got %d", outcome.Version)
	}
}

func TestSubmitAnswer_AggregatesStayConsistent(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)
	ctx := context.Background()

	checkCounters := func(step string, correct, incorrect, skipped int) {
		t.Helper()
		stored := fake.getAttempt(attempt.ID)
		if stored.CorrectCount != correct || stored.IncorrectCount != incorrect || stored.SkippedCount != skipped {
			t.Errorf("%s: persisted counters correct=%d incorrect=%d skipped=%d, want %d/%d/%d",
				step, stored.CorrectCount, stored.IncorrectCount, stored.SkippedCount, correct, incorrect, skipped)
		}
		if sum := stored.CorrectCount + stored.IncorrectCount + stored.SkippedCount; sum != stored.TotalQuestions {
			t.Errorf("%s: counters sum to %d, total is %d", step, sum, stored.TotalQuestions)
		}
	}

	checkCounters("fresh attempt", 0, 0, 3)

	if _, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{QuestionID: 1, Answer: "a"}); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	checkCounters("after correct answer", 1, 0, 2)

	if _, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{QuestionID: 2, Answer: false}); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	checkCounters("after incorrect answer", 1, 1, 1)

	// Flipping an earlier verdict moves the counters, not just the row.
	if _, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{QuestionID: 1, Answer: "b"}); err != nil {
		t.Fatalf("resubmit q1: %v", err)
	}
	checkCounters("after flipping q1", 0, 2, 1)
}

func TestSubmitAnswer_Idempotent(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)
	ctx := context.Background()

	req := SubmitAnswerRequest{
		QuestionID:     1,
		Answer:         "a",
		IdempotencyKey: strPtr("ck-1"),
	}

	first, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, req)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if second.Version != first.Version {
		t.Errorf("replay should return the original outcome, versions %d vs %d", second.Version, first.Version)
	}

	// The duplicate must not touch the attempt again.
	if stored := fake.getAttempt(attempt.ID); stored.Version != 2 {
		t.Errorf("attempt version should stay at 2, got %d", stored.Version)
	}
}

func TestSubmitAnswer_StaleVersion(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)

	stale := int64(99)
	_, err := service.SubmitAnswer(context.Background(), "student-1", attempt.ID, SubmitAnswerRequest{
		QuestionID:      1,
		Answer:          "a",
		ExpectedVersion: &stale,
	})
	if !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
	if Classify(err) != KindConflict {
		t.Errorf("stale version should classify as conflict")
	}

	// No retry should have mutated anything.
	if stored := fake.getAttempt(attempt.ID); stored.Version != 1 {
		t.Errorf("attempt version should stay at 1, got %d", stored.Version)
	}
}

func TestSubmitAnswer_ExpiredFinalizesWithoutGrading(t *testing.T) {
	service, fake, publisher := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)

	fake.mu.Lock()
	fake.attempts[attempt.ID].StartedAt = time.Now().Add(-601 * time.Second)
	fake.mu.Unlock()

	outcome, err := service.SubmitAnswer(context.Background(), "student-1", attempt.ID, SubmitAnswerRequest{
		QuestionID: 1,
		Answer:     "a",
	})
	if err != nil {
		t.Fatalf("expired submit should not error: %v", err)
	}
	if !outcome.AttemptCompleted {
		t.Error("outcome should flag the attempt as completed")
	}
	if outcome.IsCorrect != nil {
		t.Error("late answer must not be graded")
	}

	stored := fake.getAttempt(attempt.ID)
	if !stored.Status.IsTerminal() {
		t.Errorf("attempt should be finalized, status %s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("finalized attempt should have a completion time")
	}

	var sawExpired bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.AttemptExpired {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Error("expiration should publish attempt.expired")
	}
}

func TestSubmitAnswer_WrongUser(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)

	_, err := service.SubmitAnswer(context.Background(), "intruder", attempt.ID, SubmitAnswerRequest{
		QuestionID: 1,
		Answer:     "a",
	})
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if Classify(err) != KindForbidden {
		t.Errorf("expected forbidden kind, got %s", Classify(err))
	}
}

func TestSubmitAnswer_QuestionNotInAttempt(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)

	_, err := service.SubmitAnswer(context.Background(), "student-1", attempt.ID, SubmitAnswerRequest{
		QuestionID: 999,
		Answer:     "a",
	})
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestSubmitAnswer_ConcurrentNoLostUpdates(t *testing.T) {
	service, fake, _ := newTestService(t)
	fake.addUser(&models.User{ID: "student-1", Role: models.RoleStudent, Active: true})

	const questionCount = 10
	ids := make([]uint, questionCount)
	for i := 0; i < questionCount; i++ {
		id := uint(i + 1)
		ids[i] = id
		fake.addQuestion(&models.Question{
			ID: id, Type: models.TrueFalse, Text: "q", Points: 10,
			Answer: mustJSON(t, models.TrueFalseKey{CorrectAnswer: true}),
		})
	}
	noRandomize := false
	fake.addTemplate(&models.ExamTemplate{
		ID: 1, Title: "Wide", QuestionCount: questionCount, DurationSeconds: 600,
		QuestionIDs: mustJSON(t, ids), Randomize: &noRandomize,
		PassingScore: 70, IsActive: true, CreatedBy: "teacher-1",
	})

	attempt := startAttempt(t, service)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < questionCount; i++ {
		wg.Add(1)
		go func(questionID uint) {
			defer wg.Done()
			_, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{
				QuestionID: questionID,
				Answer:     true,
			})
			if err != nil {
				t.Errorf("question %d: %v", questionID, err)
			}
		}(ids[i])
	}
	wg.Wait()

	stored := fake.getAttempt(attempt.ID)
	if stored.Version != int64(1+questionCount) {
		t.Errorf("every submission should bump the version once: got %d", stored.Version)
	}

	rows, _ := fake.AttemptQuestion().ListByAttempt(ctx, attempt.ID)
	for _, row := range rows {
		if len(row.UserAnswer) == 0 {
			t.Errorf("question %d lost its answer", row.QuestionID)
		}
	}
}

// ===== COMPLETE / RESULTS =====

func TestCompleteAndResults(t *testing.T) {
	service, fake, publisher := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)
	ctx := context.Background()

	// One correct, one incorrect, one skipped.
	if _, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{QuestionID: 1, Answer: "a"}); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{QuestionID: 2, Answer: false}); err != nil {
		t.Fatalf("submit q2: %v", err)
	}

	summary, err := service.Complete(ctx, "student-1", attempt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if summary.Status != models.AttemptGraded {
		t.Errorf("fully auto-graded attempt should be graded, got %s", summary.Status)
	}
	if summary.CorrectCount != 1 || summary.IncorrectCount != 1 || summary.SkippedCount != 1 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if summary.Score != 3.33 || summary.Percentage != 33 || summary.Passed {
		t.Errorf("unexpected score: %.2f / %d%% passed=%v", summary.Score, summary.Percentage, summary.Passed)
	}
	if summary.TemplateTitle != "General Knowledge" {
		t.Errorf("summary should carry the template title, got %q", summary.TemplateTitle)
	}
	if summary.CompletedAt == nil {
		t.Error("completed attempt should have a completion time")
	}

	// The per-question breakdown lives on the results path only.
	result, err := service.GetDetailedResults(ctx, "student-1", attempt.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(result.Questions) != 3 {
		t.Fatalf("breakdown should list all questions, got %d", len(result.Questions))
	}

	var sawCompleted bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.AttemptCompleted {
			sawCompleted = true
			if event.Score == nil || *event.Score != 3.33 {
				t.Errorf("completion event should carry the score, got %v", event.Score)
			}
		}
	}
	if !sawCompleted {
		t.Error("completing should publish attempt.completed")
	}

	// Completing again is rejected.
	if _, err := service.Complete(ctx, "student-1", attempt.ID); !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Errorf("expected ErrAttemptAlreadyCompleted, got %v", err)
	}
}

func TestGetDetailedResults_NotReadyWhileInProgress(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)

	_, err := service.GetDetailedResults(context.Background(), "student-1", attempt.ID)
	if !errors.Is(err, ErrResultsNotReady) {
		t.Fatalf("expected ErrResultsNotReady, got %v", err)
	}
}

func TestGetDetailedResults_VisibilityPolicy(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)

	// A locked-down template: no correct answers, no explanations.
	noRandomize := false
	fake.addTemplate(&models.ExamTemplate{
		ID: 3, Title: "Locked Down", QuestionCount: 3, DurationSeconds: 600,
		QuestionIDs:        mustJSON(t, []uint{1, 2, 3}),
		Randomize:          &noRandomize,
		PassingScore:       70,
		ShowCorrectAnswers: false, ShowExplanation: false, ShowScoreBreakdown: true,
		IsActive: true, CreatedBy: "teacher-1",
	})

	ctx := context.Background()
	attempt, err := service.Start(ctx, "student-1", StartAttemptRequest{TemplateID: 3})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "student-1", attempt.ID, SubmitAnswerRequest{QuestionID: 1, Answer: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := service.Complete(ctx, "student-1", attempt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	result, err := service.GetDetailedResults(ctx, "student-1", attempt.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}

	for _, question := range result.Questions {
		if question.CorrectAnswer != nil {
			t.Errorf("correct answer must be omitted for question %d", question.QuestionID)
		}
		if question.Explanation != nil {
			t.Errorf("explanation must be omitted for question %d", question.QuestionID)
		}
		// Verdicts themselves remain visible.
		if question.QuestionID == 1 && question.IsCorrect == nil {
			t.Error("verdict should remain visible for answered questions")
		}
	}
}

func TestGetDetailedResults_BreakdownHidden(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)

	noRandomize := false
	fake.addTemplate(&models.ExamTemplate{
		ID: 4, Title: "Totals Only", QuestionCount: 3, DurationSeconds: 600,
		QuestionIDs:        mustJSON(t, []uint{1, 2, 3}),
		Randomize:          &noRandomize,
		PassingScore:       70,
		ShowScoreBreakdown: false,
		IsActive:           true, CreatedBy: "teacher-1",
	})

	ctx := context.Background()
	attempt, err := service.Start(ctx, "student-1", StartAttemptRequest{TemplateID: 4})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := service.Complete(ctx, "student-1", attempt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	result, err := service.GetDetailedResults(ctx, "student-1", attempt.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if result.Questions != nil {
		t.Error("per-question breakdown must be omitted entirely")
	}
	if result.TotalQuestions != 3 {
		t.Errorf("aggregates remain visible, got %d total", result.TotalQuestions)
	}
}

// ===== CANCEL =====

func TestCancel(t *testing.T) {
	service, fake, publisher := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)
	ctx := context.Background()

	if err := service.Cancel(ctx, "student-1", attempt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stored := fake.getAttempt(attempt.ID)
	if stored.Status != models.AttemptCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}

	var sawCancelled bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.AttemptCancelled {
			sawCancelled = true
			if event.Score != nil {
				t.Error("cancellation event must not carry a score")
			}
		}
	}
	if !sawCancelled {
		t.Error("cancelling should publish attempt.cancelled")
	}

	// Cancelled attempts have no results.
	if _, err := service.GetDetailedResults(ctx, "student-1", attempt.ID); !errors.Is(err, ErrResultsNotReady) {
		t.Errorf("expected ErrResultsNotReady for cancelled attempt, got %v", err)
	}

	if err := service.Cancel(ctx, "student-1", attempt.ID); !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("double cancel should fail with ErrAttemptNotActive, got %v", err)
	}
}

// ===== CURRENT / HISTORY =====

func TestGetCurrent(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	ctx := context.Background()

	if current, err := service.GetCurrent(ctx, "student-1"); err != nil || current != nil {
		t.Fatalf("no active attempt should yield nil without error, got %v / %v", current, err)
	}

	attempt := startAttempt(t, service)

	current, err := service.GetCurrent(ctx, "student-1")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current.ID != attempt.ID {
		t.Errorf("expected attempt %d, got %d", attempt.ID, current.ID)
	}
	if len(current.Questions) != 3 {
		t.Errorf("current attempt should include questions, got %d", len(current.Questions))
	}
}

func TestGetCurrent_ExpiredIsFinalized(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	attempt := startAttempt(t, service)

	fake.mu.Lock()
	fake.attempts[attempt.ID].StartedAt = time.Now().Add(-601 * time.Second)
	fake.mu.Unlock()

	current, err := service.GetCurrent(context.Background(), "student-1")
	if err != nil || current != nil {
		t.Fatalf("expired attempt should not be current, got %v / %v", current, err)
	}

	stored := fake.getAttempt(attempt.ID)
	if !stored.Status.IsTerminal() {
		t.Errorf("expired attempt should be finalized, status %s", stored.Status)
	}
}

func TestGetHistory(t *testing.T) {
	service, fake, _ := newTestService(t)
	seedExam(t, fake)
	ctx := context.Background()

	// Three finished attempts, spaced out in time.
	for i := 0; i < 3; i++ {
		attempt := startAttempt(t, service)
		if _, err := service.Complete(ctx, "student-1", attempt.ID); err != nil {
			t.Fatalf("complete attempt %d: %v", i, err)
		}
		fake.mu.Lock()
		fake.attempts[attempt.ID].StartedAt = time.Now().Add(time.Duration(-3+i) * time.Hour)
		fake.mu.Unlock()
	}

	page, err := service.GetHistory(ctx, "student-1", HistoryRequest{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 {
		t.Errorf("expected 3 attempts over 2 pages, got total=%d pages=%d", page.Total, page.TotalPages)
	}
	if len(page.Attempts) != 2 {
		t.Fatalf("expected 2 attempts on page 1, got %d", len(page.Attempts))
	}
	// Default sort is most recent first.
	if !page.Attempts[0].StartedAt.After(page.Attempts[1].StartedAt) {
		t.Error("history should be sorted newest first")
	}
	if page.Attempts[0].TemplateTitle != "General Knowledge" {
		t.Errorf("summary should carry the template title, got %q", page.Attempts[0].TemplateTitle)
	}

	second, err := service.GetHistory(ctx, "student-1", HistoryRequest{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("history page 2: %v", err)
	}
	if len(second.Attempts) != 1 {
		t.Errorf("expected 1 attempt on page 2, got %d", len(second.Attempts))
	}

	empty, err := service.GetHistory(ctx, "nobody", HistoryRequest{})
	if err != nil {
		t.Fatalf("empty history: %v", err)
	}
	if empty.Total != 0 || len(empty.Attempts) != 0 {
		t.Errorf("expected empty history, got %+v", empty)
	}
}

// ===== EXPIRATION SWEEP =====

func TestExpireOverdue(t *testing.T) {
	service, fake, publisher := newTestService(t)
	seedExam(t, fake)
	ctx := context.Background()

	// Two overdue attempts from different users.
	fake.addUser(&models.User{ID: "student-2", Role: models.RoleStudent, Active: true})
	for i, userID := range []string{"student-1", "student-2"} {
		attempt := &models.ExamAttempt{
			UserID: userID, TemplateID: 1, Status: models.AttemptInProgress,
			DurationSeconds: 60,
			StartedAt:       time.Now().Add(time.Duration(-120-i) * time.Second),
			LastActivityAt:  time.Now().Add(-2 * time.Minute),
			PassingScore:    70, Version: 1,
		}
		if err := fake.Attempt().Create(ctx, attempt); err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
	}

	expired, err := service.ExpireOverdue(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 2 {
		t.Errorf("expected 2 expired attempts, got %d", expired)
	}

	var expiredEvents int
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.AttemptExpired {
			expiredEvents++
		}
	}
	if expiredEvents != 2 {
		t.Errorf("expected 2 attempt.expired events, got %d", expiredEvents)
	}

	// Sweep is idempotent once everything is terminal.
	expired, err = service.ExpireOverdue(ctx, 0)
	if err != nil || expired != 0 {
		t.Errorf("second sweep should find nothing: count=%d err=%v", expired, err)
	}
}
