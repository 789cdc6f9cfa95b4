package services

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/events"
	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
	"github.com/SAP-F-2025/exam-service/internal/utils"
	"github.com/SAP-F-2025/exam-service/internal/validator"
)

const (
	// staleActivityThreshold is how long an in_progress attempt may sit
	// without activity before Start treats it as abandoned and finalizes it.
	staleActivityThreshold = 5 * time.Minute

	// submitRetryAttempts bounds transparent retries of a submission that
	// lost the optimistic-lock race at the store level.
	submitRetryAttempts  = 3
	submitRetryBaseDelay = 100 * time.Millisecond

	maxExplicitQuestions = 200

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	defaultExpireBatchSize = 100
)

type attemptService struct {
	repo      repositories.Repository
	validator *validator.Validator
	logger    utils.Logger
	publisher events.EventPublisher
	guard     IdempotencyGuard
	authz     AuthorizationService
}

func NewAttemptService(
	repo repositories.Repository,
	v *validator.Validator,
	logger utils.Logger,
	publisher events.EventPublisher,
	guard IdempotencyGuard,
	authz AuthorizationService,
) AttemptService {
	return &attemptService{
		repo:      repo,
		validator: v,
		logger:    logger,
		publisher: publisher,
		guard:     guard,
		authz:     authz,
	}
}

// ===== START =====

func (s *attemptService) Start(ctx context.Context, userID string, req StartAttemptRequest) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.resolveExistingActive(ctx, userID); err != nil {
		return nil, err
	}

	template, err := s.repo.Template().GetByID(ctx, req.TemplateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to load template %d: %w", req.TemplateID, err)
	}
	if err := s.authz.CanUseTemplate(ctx, userID, template); err != nil {
		return nil, err
	}

	questions, err := s.resolveQuestions(ctx, template)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrEmptyQuestionSet
	}

	if template.RandomizeEnabled() {
		shuffleInPlace(questions)
	}

	now := time.Now()
	attempt := &models.ExamAttempt{
		UserID:          userID,
		TemplateID:      template.ID,
		Status:          models.AttemptInProgress,
		DurationSeconds: template.DurationSeconds,
		StartedAt:       now,
		LastActivityAt:  now,
		PassingScore:    template.PassingScore,
		TotalQuestions:  len(questions),
		SkippedCount:    len(questions),
		Version:         1,
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		if err := r.Attempt().Create(ctx, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		rows, err := buildAttemptQuestions(attempt.ID, questions, template.RandomizeEnabled())
		if err != nil {
			return err
		}
		return r.AttemptQuestion().CreateBatch(ctx, rows)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewAttemptEvent(events.AttemptStarted, attempt))
	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"user_id", userID,
		"template_id", template.ID,
		"question_count", len(questions))

	loaded, err := s.repo.Attempt().GetByIDWithQuestions(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload attempt %d: %w", attempt.ID, err)
	}
	return s.buildAttemptResponse(loaded), nil
}

// resolveExistingActive enforces the one-active-attempt rule. An abandoned or
// overdue attempt is finalized in place so the user can start fresh; a live
// one blocks the start.
func (s *attemptService) resolveExistingActive(ctx context.Context, userID string) error {
	active, err := s.repo.Attempt().GetActiveByUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to check active attempt: %w", err)
	}

	expired := IsExpired(active.StartedAt, active.DurationSeconds)
	abandoned := time.Since(active.LastActivityAt) > staleActivityThreshold
	if !expired && !abandoned {
		return ErrActiveAttemptExists
	}

	if err := s.finalizeAttempt(ctx, active, events.AttemptExpired); err != nil {
		if repositories.IsVersionConflictError(err) {
			// Another request finalized it first; the slot is free either way.
			return nil
		}
		return err
	}
	s.logger.Info("finalized stale attempt before starting a new one",
		"attempt_id", active.ID, "user_id", userID, "expired", expired)
	return nil
}

// ===== SUBMIT ANSWER =====

func (s *attemptService) SubmitAnswer(ctx context.Context, userID string, attemptID uint, req SubmitAnswerRequest) (*AnswerOutcome, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	compute := func() (*AnswerOutcome, error) {
		return s.submitAnswerWithRetry(ctx, userID, attemptID, req)
	}

	if req.IdempotencyKey == nil || *req.IdempotencyKey == "" {
		return compute()
	}

	key := SubmissionKey(userID, attemptID, req.QuestionID, *req.IdempotencyKey)
	outcome, replayed, err := s.guard.GetOrCreate(ctx, key, compute)
	if err != nil {
		return nil, err
	}
	if replayed {
		s.logger.Debug("replayed idempotent submission",
			"attempt_id", attemptID, "question_id", req.QuestionID, "key", *req.IdempotencyKey)
	}
	return outcome, nil
}

// submitAnswerWithRetry retries store-level optimistic-lock losses with
// exponential backoff. A client-declared expected_version mismatch is not
// retried: re-reading cannot make the client's stale view current again.
func (s *attemptService) submitAnswerWithRetry(ctx context.Context, userID string, attemptID uint, req SubmitAnswerRequest) (*AnswerOutcome, error) {
	var lastErr error
	for i := 0; i < submitRetryAttempts; i++ {
		if i > 0 {
			delay := submitRetryBaseDelay << (i - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			s.logger.Debug("retrying submission after version conflict",
				"attempt_id", attemptID, "question_id", req.QuestionID, "retry", i)
		}

		outcome, err := s.submitAnswerOnce(ctx, userID, attemptID, req)
		if err == nil {
			return outcome, nil
		}
		if !repositories.IsVersionConflictError(err) {
			return nil, err
		}
		lastErr = err
	}
	s.logger.Warn("submission exhausted optimistic-lock retries",
		"attempt_id", attemptID, "question_id", req.QuestionID, "error", lastErr)
	return nil, ErrConcurrentModification
}

func (s *attemptService) submitAnswerOnce(ctx context.Context, userID string, attemptID uint, req SubmitAnswerRequest) (*AnswerOutcome, error) {
	var outcome *AnswerOutcome
	var pending *events.AttemptEvent

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		attempt, err := r.Attempt().GetByID(ctx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "submit_answer", "attempt belongs to another user")
		}
		if attempt.Status.IsTerminal() {
			if attempt.Status == models.AttemptCancelled {
				return ErrAttemptNotActive
			}
			return ErrAttemptAlreadyCompleted
		}

		// Expiration is a normal outcome, not an error: the attempt is
		// finalized from whatever was answered so far and the late answer is
		// discarded.
		if IsExpired(attempt.StartedAt, attempt.DurationSeconds) {
			event, err := s.finalizeTx(ctx, r, attempt, events.AttemptExpired)
			if err != nil {
				return err
			}
			pending = event
			outcome = &AnswerOutcome{
				QuestionID:       req.QuestionID,
				AttemptCompleted: true,
				Version:          attempt.Version,
			}
			return nil
		}

		if req.ExpectedVersion != nil && *req.ExpectedVersion != attempt.Version {
			return ErrStaleVersion
		}

		row, err := r.AttemptQuestion().GetByAttemptAndQuestion(ctx, attemptID, req.QuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("failed to load attempt question: %w", err)
		}

		if !IsValidAnswerFormat(row.Question.Type, req.Answer) {
			return NewValidationError("answer",
				fmt.Sprintf("expected %s", ExpectedFormatDescription(row.Question.Type)), req.Answer)
		}

		verdict, err := CheckAnswer(&row.Question, req.Answer)
		if err != nil {
			return err
		}

		row.UserAnswer = verdict.Normalized
		row.IsCorrect = verdict.IsCorrect
		row.Score = CalculateQuestionScore(row.Question.Points, verdict.IsCorrect)
		if err := r.AttemptQuestion().Update(ctx, row); err != nil {
			return fmt.Errorf("failed to persist answer: %w", err)
		}

		// Aggregates are recomputed from the persisted rows inside the same
		// transaction, so counters and the running score are never observable
		// out of step with the answers.
		rows, err := r.AttemptQuestion().ListByAttempt(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to load attempt questions: %w", err)
		}
		score := CalculateExamScore(rows, attempt.PassingScore)
		attempt.Score = score.Score
		attempt.Percentage = score.Percentage
		attempt.Passed = score.Passed
		attempt.CorrectCount = score.CorrectCount
		attempt.IncorrectCount = score.IncorrectCount
		attempt.SkippedCount = score.SkippedCount
		attempt.LastActivityAt = time.Now()
		if err := r.Attempt().UpdateWithVersion(ctx, attempt, attempt.Version); err != nil {
			return err
		}

		template, err := r.Template().GetByID(ctx, attempt.TemplateID)
		if err != nil {
			return fmt.Errorf("failed to load template %d: %w", attempt.TemplateID, err)
		}
		outcome = s.buildAnswerOutcome(attempt, row, verdict, template)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pending != nil {
		s.publish(ctx, pending)
	}
	return outcome, nil
}

func (s *attemptService) buildAnswerOutcome(attempt *models.ExamAttempt, row *models.AttemptQuestion, verdict *Verdict, template *models.ExamTemplate) *AnswerOutcome {
	outcome := &AnswerOutcome{
		QuestionID:      row.QuestionID,
		IsCorrect:       verdict.IsCorrect,
		SubmittedAnswer: []byte(verdict.Normalized),
		Feedback:        verdict.Feedback,
		Version:         attempt.Version,
	}
	if template.ShowCorrectAnswers {
		outcome.CorrectAnswer = verdict.CorrectAnswer
	}
	if template.ShowExplanation {
		outcome.Explanation = row.Question.Explanation
	}
	return outcome
}

// ===== COMPLETE / CANCEL =====

func (s *attemptService) Complete(ctx context.Context, userID string, attemptID uint) (*AttemptSummary, error) {
	var pending *events.AttemptEvent

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		attempt, err := r.Attempt().GetByID(ctx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "complete", "attempt belongs to another user")
		}
		if attempt.Status.IsTerminal() {
			return ErrAttemptAlreadyCompleted
		}

		eventType := events.AttemptCompleted
		if IsExpired(attempt.StartedAt, attempt.DurationSeconds) {
			eventType = events.AttemptExpired
		}
		event, err := s.finalizeTx(ctx, r, attempt, eventType)
		if err != nil {
			return err
		}
		pending = event
		return nil
	})
	if err != nil {
		if repositories.IsVersionConflictError(err) {
			return nil, ErrConcurrentModification
		}
		return nil, err
	}

	s.publish(ctx, pending)

	loaded, err := s.repo.Attempt().GetByIDWithQuestions(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload attempt %d: %w", attemptID, err)
	}
	summary := buildAttemptSummary(loaded)
	return &summary, nil
}

func (s *attemptService) Cancel(ctx context.Context, userID string, attemptID uint) error {
	var pending *events.AttemptEvent

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		attempt, err := r.Attempt().GetByID(ctx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "cancel", "attempt belongs to another user")
		}
		if attempt.Status.IsTerminal() {
			return ErrAttemptNotActive
		}

		now := time.Now()
		attempt.Status = models.AttemptCancelled
		attempt.CompletedAt = &now
		attempt.LastActivityAt = now
		if err := r.Attempt().UpdateWithVersion(ctx, attempt, attempt.Version); err != nil {
			return err
		}
		pending = events.NewAttemptEvent(events.AttemptCancelled, attempt)
		return nil
	})
	if err != nil {
		if repositories.IsVersionConflictError(err) {
			return ErrConcurrentModification
		}
		return err
	}

	s.publish(ctx, pending)
	s.logger.Info("attempt cancelled", "attempt_id", attemptID, "user_id", userID)
	return nil
}

// ===== QUERIES =====

// GetCurrent resolves the user's in-progress attempt. Having nothing to
// resume is not an error: an expired attempt is finalized in passing and the
// result is nil either way.
func (s *attemptService) GetCurrent(ctx context.Context, userID string) (*AttemptResponse, error) {
	active, err := s.repo.Attempt().GetActiveByUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active attempt: %w", err)
	}

	if IsExpired(active.StartedAt, active.DurationSeconds) {
		if err := s.finalizeAttempt(ctx, active, events.AttemptExpired); err != nil && !repositories.IsVersionConflictError(err) {
			return nil, err
		}
		return nil, nil
	}

	loaded, err := s.repo.Attempt().GetByIDWithQuestions(ctx, active.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt %d: %w", active.ID, err)
	}
	return s.buildAttemptResponse(loaded), nil
}

func (s *attemptService) GetHistory(ctx context.Context, userID string, req HistoryRequest) (*HistoryPage, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	filters := repositories.AttemptFilters{
		Limit:     limit,
		Offset:    (page - 1) * limit,
		SortBy:    req.SortBy,
		SortOrder: req.Order,
	}
	if req.Status != "" {
		status := models.AttemptStatus(req.Status)
		filters.Status = &status
	}

	attempts, total, err := s.repo.Attempt().ListByUser(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	summaries := make([]AttemptSummary, len(attempts))
	for i, attempt := range attempts {
		summaries[i] = buildAttemptSummary(attempt)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &HistoryPage{
		Attempts:   summaries,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (s *attemptService) GetDetailedResults(ctx context.Context, userID string, attemptID uint) (*ResultView, error) {
	attempt, err := s.repo.Attempt().GetByIDWithQuestions(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "view_results", "attempt belongs to another user")
	}
	if !attempt.Status.IsTerminal() || attempt.Status == models.AttemptCancelled {
		return nil, ErrResultsNotReady
	}

	return buildResultView(attempt), nil
}

// ===== EXPIRATION SWEEP =====

// ExpireOverdue finalizes in_progress attempts whose duration has elapsed.
// Each attempt is handled in its own transaction so one failure does not
// abort the sweep; version conflicts mean someone else finalized first and
// are skipped silently.
func (s *attemptService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpireBatchSize
	}

	overdue, err := s.repo.Attempt().GetOverdue(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue attempts: %w", err)
	}

	expired := 0
	for _, attempt := range overdue {
		if err := s.finalizeAttempt(ctx, attempt, events.AttemptExpired); err != nil {
			if repositories.IsVersionConflictError(err) {
				continue
			}
			s.logger.Error("failed to expire attempt",
				"attempt_id", attempt.ID, "user_id", attempt.UserID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("expired overdue attempts", "count", expired, "scanned", len(overdue))
	}
	return expired, nil
}

// ===== FINALIZATION =====

// finalizeAttempt wraps finalizeTx in its own transaction and publishes the
// resulting event.
func (s *attemptService) finalizeAttempt(ctx context.Context, attempt *models.ExamAttempt, eventType events.EventType) error {
	var pending *events.AttemptEvent
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		event, err := s.finalizeTx(ctx, r, attempt, eventType)
		if err != nil {
			return err
		}
		pending = event
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, pending)
	return nil
}

// finalizeTx grades the attempt from its persisted answer rows and moves it
// to a terminal status under the optimistic lock. The attempt reaches graded
// directly when every answered question has a verdict; a pending manual item
// (an answered essay) leaves it at completed.
func (s *attemptService) finalizeTx(ctx context.Context, r repositories.Repository, attempt *models.ExamAttempt, eventType events.EventType) (*events.AttemptEvent, error) {
	rows, err := r.AttemptQuestion().ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt questions: %w", err)
	}

	score := CalculateExamScore(rows, attempt.PassingScore)

	status := models.AttemptGraded
	for _, row := range rows {
		if len(row.UserAnswer) > 0 && row.IsCorrect == nil {
			status = models.AttemptCompleted
			break
		}
	}

	now := time.Now()
	attempt.Status = status
	attempt.CompletedAt = &now
	attempt.LastActivityAt = now
	attempt.Score = score.Score
	attempt.Percentage = score.Percentage
	attempt.Passed = score.Passed
	attempt.CorrectCount = score.CorrectCount
	attempt.IncorrectCount = score.IncorrectCount
	attempt.SkippedCount = score.SkippedCount
	attempt.TotalQuestions = score.TotalQuestions

	if err := r.Attempt().UpdateWithVersion(ctx, attempt, attempt.Version); err != nil {
		return nil, err
	}
	return events.NewAttemptEvent(eventType, attempt), nil
}

// publish delivers an event best-effort: attempt state is already committed,
// so a broker failure is logged rather than surfaced to the caller.
func (s *attemptService) publish(ctx context.Context, event *events.AttemptEvent) {
	if event == nil || s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAttemptEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish attempt event",
			"event_type", event.Type, "attempt_id", event.AttemptID, "error", err)
	}
}
