package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// ===== QUESTION RESOLUTION =====

// resolveQuestions materializes the template's selection rule into a concrete
// question list. Exactly one strategy applies, in priority order: explicit
// ids, category distribution, whole pool.
func (s *attemptService) resolveQuestions(ctx context.Context, template *models.ExamTemplate) ([]*models.Question, error) {
	if template.UsesExplicitSelection() {
		ids, err := template.ExplicitQuestionIDs()
		if err != nil {
			return nil, fmt.Errorf("template %d has malformed question_ids: %w", template.ID, err)
		}
		return s.resolveExplicit(ctx, template, ids)
	}

	rules, err := template.CategoryRules()
	if err != nil {
		return nil, fmt.Errorf("template %d has malformed distribution: %w", template.ID, err)
	}
	if len(rules) > 0 {
		return s.resolveDistribution(ctx, template, rules)
	}

	return s.resolvePool(ctx, template)
}

// resolveExplicit takes an already sanitized id list: capped rather than
// rejected when oversized, and a BadRequest when nothing valid remains.
func (s *attemptService) resolveExplicit(ctx context.Context, template *models.ExamTemplate, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, NewValidationError("question_ids",
			"explicit question list contains no valid ids", string(template.QuestionIDs))
	}
	if len(ids) > maxExplicitQuestions {
		s.logger.Warn("explicit question list capped",
			"template_id", template.ID, "declared", len(ids), "cap", maxExplicitQuestions)
		ids = ids[:maxExplicitQuestions]
	}

	questions, err := s.repo.Question().FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for template %d: %w", template.ID, err)
	}
	if len(questions) != len(ids) {
		s.logger.Warn("template references questions that no longer exist",
			"template_id", template.ID, "expected", len(ids), "found", len(questions))
		return nil, ErrQuestionNotFound
	}

	// Preserve the declared order; randomization, if enabled, happens later.
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

func (s *attemptService) resolveDistribution(ctx context.Context, template *models.ExamTemplate, rules []models.CategoryRule) ([]*models.Question, error) {
	var selected []*models.Question
	seen := make(map[uint]bool)

	for _, rule := range rules {
		if rule.Count <= 0 {
			continue
		}
		pool, err := s.repo.Question().FindByCategory(ctx, rule.CategoryID, rule.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("failed to load category %d questions: %w", rule.CategoryID, err)
		}

		candidates := make([]*models.Question, 0, len(pool))
		for _, q := range pool {
			if !seen[q.ID] {
				candidates = append(candidates, q)
			}
		}

		take := rule.Count
		if len(candidates) < take {
			s.logger.Warn("category pool smaller than requested count",
				"template_id", template.ID,
				"category_id", rule.CategoryID,
				"requested", rule.Count,
				"available", len(candidates))
			take = len(candidates)
		}

		// The pool arrives ordered by id, so a non-randomized template takes
		// a deterministic prefix.
		if template.RandomizeEnabled() {
			shuffleInPlace(candidates)
		}
		for _, q := range candidates[:take] {
			seen[q.ID] = true
			selected = append(selected, q)
		}
	}

	if len(selected) == 0 {
		return nil, ErrEmptyQuestionSet
	}
	return selected, nil
}

func (s *attemptService) resolvePool(ctx context.Context, template *models.ExamTemplate) ([]*models.Question, error) {
	pool, err := s.repo.Question().FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load question pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrEmptyQuestionSet
	}

	take := template.QuestionCount
	if take <= 0 || take > len(pool) {
		if take > len(pool) {
			s.logger.Warn("question pool smaller than template question count",
				"template_id", template.ID, "requested", take, "available", len(pool))
		}
		take = len(pool)
	}

	if template.RandomizeEnabled() {
		shuffleInPlace(pool)
	}
	return pool[:take], nil
}

// shuffleInPlace is a Fisher-Yates shuffle.
func shuffleInPlace[T any](items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// ===== ATTEMPT CONSTRUCTION =====

// buildAttemptQuestions turns resolved questions into attempt rows, fixing a
// per-attempt option ordering for choice questions.
func buildAttemptQuestions(attemptID uint, questions []*models.Question, randomize bool) ([]*models.AttemptQuestion, error) {
	rows := make([]*models.AttemptQuestion, len(questions))
	for i, q := range questions {
		row := &models.AttemptQuestion{
			AttemptID:  attemptID,
			QuestionID: q.ID,
			Position:   i + 1,
		}
		if q.Type == models.SingleChoice || q.Type == models.MultipleChoice {
			order, err := buildOptionOrder(q, randomize)
			if err != nil {
				return nil, err
			}
			row.OptionOrder = order
		}
		rows[i] = row
	}
	return rows, nil
}

func buildOptionOrder(question *models.Question, randomize bool) (datatypes.JSON, error) {
	var options []models.ChoiceOption
	if err := json.Unmarshal(question.Options, &options); err != nil {
		return nil, fmt.Errorf("question %d has malformed options: %w", question.ID, err)
	}
	ids := make([]string, len(options))
	for i, opt := range options {
		ids[i] = opt.ID
	}
	if randomize {
		shuffleInPlace(ids)
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

// ===== VIEW BUILDERS =====

func (s *attemptService) buildAttemptResponse(attempt *models.ExamAttempt) *AttemptResponse {
	views := make([]AttemptQuestionView, len(attempt.Questions))
	for i := range attempt.Questions {
		views[i] = buildQuestionView(&attempt.Questions[i])
	}
	return &AttemptResponse{
		ExamAttempt:      attempt,
		RemainingSeconds: RemainingSeconds(attempt.StartedAt, attempt.DurationSeconds),
		Questions:        views,
	}
}

func buildQuestionView(row *models.AttemptQuestion) AttemptQuestionView {
	view := AttemptQuestionView{
		QuestionID: row.QuestionID,
		Position:   row.Position,
		Type:       row.Question.Type,
		Text:       row.Question.Text,
		Points:     row.Question.Points,
		UserAnswer: json.RawMessage(row.UserAnswer),
		Answered:   len(row.UserAnswer) > 0,
		Difficulty: row.Question.Difficulty,
	}
	view.Options = sanitizeOptions(&row.Question, row.OptionOrder)
	return view
}

// sanitizeOptions strips correctness flags and applies the per-attempt
// ordering stored on the row.
func sanitizeOptions(question *models.Question, order datatypes.JSON) []SanitizedOption {
	if len(question.Options) == 0 {
		return nil
	}
	var options []models.ChoiceOption
	if err := json.Unmarshal(question.Options, &options); err != nil {
		return nil
	}

	byID := make(map[string]models.ChoiceOption, len(options))
	for _, opt := range options {
		byID[opt.ID] = opt
	}

	var ids []string
	if len(order) > 0 {
		_ = json.Unmarshal(order, &ids)
	}
	if len(ids) == 0 {
		ids = make([]string, len(options))
		for i, opt := range options {
			ids[i] = opt.ID
		}
	}

	sanitized := make([]SanitizedOption, 0, len(ids))
	for i, id := range ids {
		opt, ok := byID[id]
		if !ok {
			continue
		}
		sanitized = append(sanitized, SanitizedOption{
			ID:    opt.ID,
			Text:  opt.Text,
			Order: i + 1,
		})
	}
	return sanitized
}

func buildAttemptSummary(attempt *models.ExamAttempt) AttemptSummary {
	summary := AttemptSummary{
		ID:             attempt.ID,
		TemplateID:     attempt.TemplateID,
		TemplateTitle:  attempt.Template.Title,
		Status:         attempt.Status,
		Score:          attempt.Score,
		Percentage:     attempt.Percentage,
		Passed:         attempt.Passed,
		TotalQuestions: attempt.TotalQuestions,
		CorrectCount:   attempt.CorrectCount,
		IncorrectCount: attempt.IncorrectCount,
		SkippedCount:   attempt.SkippedCount,
		StartedAt:      attempt.StartedAt,
		CompletedAt:    attempt.CompletedAt,
		DurationTaken:  ElapsedSeconds(attempt.StartedAt, attempt.CompletedAt),
	}
	return summary
}

// buildResultView applies the template's visibility policy: hidden fields are
// left nil so they are omitted from the serialized form entirely, rather than
// rendered as null.
func buildResultView(attempt *models.ExamAttempt) *ResultView {
	template := attempt.Template
	view := &ResultView{
		AttemptID:      attempt.ID,
		TemplateID:     attempt.TemplateID,
		TemplateTitle:  template.Title,
		Status:         attempt.Status,
		Score:          attempt.Score,
		Percentage:     attempt.Percentage,
		Passed:         attempt.Passed,
		PassingScore:   attempt.PassingScore,
		CorrectCount:   attempt.CorrectCount,
		IncorrectCount: attempt.IncorrectCount,
		SkippedCount:   attempt.SkippedCount,
		TotalQuestions: attempt.TotalQuestions,
		StartedAt:      attempt.StartedAt,
		CompletedAt:    attempt.CompletedAt,
		DurationTaken:  ElapsedSeconds(attempt.StartedAt, attempt.CompletedAt),
	}

	if !template.ShowScoreBreakdown {
		return view
	}

	view.Questions = make([]QuestionResult, len(attempt.Questions))
	for i := range attempt.Questions {
		row := &attempt.Questions[i]
		result := QuestionResult{
			QuestionID: row.QuestionID,
			Position:   row.Position,
			Type:       row.Question.Type,
			Text:       row.Question.Text,
			Points:     row.Question.Points,
			Score:      row.Score,
			IsCorrect:  row.IsCorrect,
			UserAnswer: json.RawMessage(row.UserAnswer),
		}
		if template.ShowCorrectAnswers {
			result.CorrectAnswer = correctAnswerFor(&row.Question)
		}
		if template.ShowExplanation {
			result.Explanation = row.Question.Explanation
		}
		view.Questions[i] = result
	}
	return view
}

// correctAnswerFor renders the canonical correct answer for display. Choice
// questions derive it from their options; the rest carry it in the answer key.
func correctAnswerFor(question *models.Question) json.RawMessage {
	switch question.Type {
	case models.SingleChoice, models.MultipleChoice:
		var options []models.ChoiceOption
		if err := json.Unmarshal(question.Options, &options); err != nil {
			return nil
		}
		var correct []string
		for _, opt := range options {
			if opt.IsCorrect {
				correct = append(correct, opt.ID)
			}
		}
		encoded, err := marshalChoiceAnswer(question.Type, correct)
		if err != nil {
			return nil
		}
		return encoded
	case models.TrueFalse:
		var key models.TrueFalseKey
		if err := json.Unmarshal(question.Answer, &key); err != nil {
			return nil
		}
		encoded, _ := json.Marshal(key.CorrectAnswer)
		return encoded
	case models.ShortAnswer:
		var key models.ShortAnswerKey
		if err := json.Unmarshal(question.Answer, &key); err != nil || len(key.AcceptedAnswers) == 0 {
			return nil
		}
		encoded, _ := json.Marshal(key.AcceptedAnswers[0])
		return encoded
	case models.Essay:
		return nil
	default:
		return json.RawMessage(question.Answer)
	}
}
