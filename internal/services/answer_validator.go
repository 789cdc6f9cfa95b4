package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// Verdict is the outcome of checking one submitted answer against its
// question definition. IsCorrect stays nil for answers that need manual
// grading.
type Verdict struct {
	IsCorrect     *bool
	CorrectAnswer json.RawMessage
	Normalized    datatypes.JSON
	Feedback      *string
}

// CheckAnswer dispatches on the question type and returns the verdict, the
// canonical correct answer and the normalized form of the submission. A
// malformed submission yields a ValidationError, never a panic.
func CheckAnswer(question *models.Question, answer interface{}) (*Verdict, error) {
	if answer == nil {
		return nil, NewValidationError("answer", "answer is required", nil)
	}

	switch question.Type {
	case models.SingleChoice, models.MultipleChoice:
		return checkChoiceAnswer(question, answer)
	case models.TrueFalse:
		return checkTrueFalseAnswer(question, answer)
	case models.ShortAnswer:
		return checkShortAnswer(question, answer)
	case models.Essay:
		return checkEssayAnswer(answer)
	default:
		return checkRawEquality(question, answer)
	}
}

func checkChoiceAnswer(question *models.Question, answer interface{}) (*Verdict, error) {
	options, err := decodeOptions(question)
	if err != nil {
		return nil, err
	}

	submitted, err := coerceChoiceSelection(answer)
	if err != nil {
		return nil, err
	}
	if question.Type == models.SingleChoice && len(submitted) > 1 {
		return nil, NewValidationError("answer", "single-choice question accepts exactly one selection", answer)
	}

	// Selections may arrive as option ids or as option content; resolve both
	// to ids before comparing.
	selectedIDs := make(map[string]bool, len(submitted))
	for _, value := range submitted {
		id, ok := resolveOptionID(options, value)
		if !ok {
			return nil, NewValidationError("answer", fmt.Sprintf("unknown option %q", value), answer)
		}
		selectedIDs[id] = true
	}

	correctIDs := make(map[string]bool)
	for _, opt := range options {
		if opt.IsCorrect {
			correctIDs[opt.ID] = true
		}
	}

	// Order-independent set equality: the submission must name exactly the
	// options flagged correct.
	isCorrect := len(selectedIDs) == len(correctIDs)
	if isCorrect {
		for id := range correctIDs {
			if !selectedIDs[id] {
				isCorrect = false
				break
			}
		}
	}

	canonical, err := marshalChoiceAnswer(question.Type, sortedKeys(correctIDs))
	if err != nil {
		return nil, err
	}
	normalized, err := marshalChoiceAnswer(question.Type, sortedKeys(selectedIDs))
	if err != nil {
		return nil, err
	}

	return &Verdict{
		IsCorrect:     &isCorrect,
		CorrectAnswer: canonical,
		Normalized:    datatypes.JSON(normalized),
	}, nil
}

func checkTrueFalseAnswer(question *models.Question, answer interface{}) (*Verdict, error) {
	submitted, err := coerceBool(answer)
	if err != nil {
		return nil, err
	}

	var key models.TrueFalseKey
	if err := json.Unmarshal(question.Answer, &key); err != nil {
		return nil, fmt.Errorf("failed to decode true/false answer key: %w", err)
	}

	isCorrect := submitted == key.CorrectAnswer
	canonical, _ := json.Marshal(key.CorrectAnswer)
	normalized, _ := json.Marshal(submitted)

	return &Verdict{
		IsCorrect:     &isCorrect,
		CorrectAnswer: canonical,
		Normalized:    datatypes.JSON(normalized),
	}, nil
}

func checkShortAnswer(question *models.Question, answer interface{}) (*Verdict, error) {
	submitted, ok := answer.(string)
	if !ok {
		return nil, NewValidationError("answer", "short answer must be a string", answer)
	}

	var key models.ShortAnswerKey
	if err := json.Unmarshal(question.Answer, &key); err != nil {
		return nil, fmt.Errorf("failed to decode short answer key: %w", err)
	}
	if len(key.AcceptedAnswers) == 0 {
		return nil, fmt.Errorf("short answer question %d has no accepted answers", question.ID)
	}

	isCorrect := false
	for _, accepted := range key.AcceptedAnswers {
		if normalizeText(submitted) == normalizeText(accepted) {
			isCorrect = true
			break
		}
	}

	canonical, _ := json.Marshal(key.AcceptedAnswers[0])
	normalized, _ := json.Marshal(strings.TrimSpace(submitted))

	return &Verdict{
		IsCorrect:     &isCorrect,
		CorrectAnswer: canonical,
		Normalized:    datatypes.JSON(normalized),
	}, nil
}

func checkEssayAnswer(answer interface{}) (*Verdict, error) {
	submitted, ok := answer.(string)
	if !ok {
		return nil, NewValidationError("answer", "essay answer must be a string", answer)
	}
	if strings.TrimSpace(submitted) == "" {
		return nil, NewValidationError("answer", "essay answer must not be empty", answer)
	}

	normalized, _ := json.Marshal(submitted)
	feedback := "Essay answers require manual grading; the verdict stays pending until a grader reviews it."

	return &Verdict{
		IsCorrect:  nil,
		Normalized: datatypes.JSON(normalized),
		Feedback:   &feedback,
	}, nil
}

func checkRawEquality(question *models.Question, answer interface{}) (*Verdict, error) {
	normalized, err := json.Marshal(answer)
	if err != nil {
		return nil, NewValidationError("answer", "answer is not serializable", answer)
	}

	var expected, got interface{}
	_ = json.Unmarshal(question.Answer, &expected)
	_ = json.Unmarshal(normalized, &got)

	isCorrect := reflect.DeepEqual(expected, got)
	return &Verdict{
		IsCorrect:     &isCorrect,
		CorrectAnswer: json.RawMessage(question.Answer),
		Normalized:    datatypes.JSON(normalized),
	}, nil
}

// ===== FORMAT VALIDATION =====

// IsValidAnswerFormat reports whether the submission's shape is acceptable
// for the question type before any persistence happens.
func IsValidAnswerFormat(questionType models.QuestionType, answer interface{}) bool {
	if answer == nil {
		return false
	}
	switch questionType {
	case models.SingleChoice:
		_, ok := answer.(string)
		return ok
	case models.MultipleChoice:
		if _, ok := answer.(string); ok {
			return true
		}
		_, err := coerceChoiceSelection(answer)
		return err == nil
	case models.TrueFalse:
		_, err := coerceBool(answer)
		return err == nil
	case models.ShortAnswer, models.Essay:
		s, ok := answer.(string)
		return ok && strings.TrimSpace(s) != ""
	default:
		return true
	}
}

// ExpectedFormatDescription describes the accepted submission shape for a
// question type, for validation error messages.
func ExpectedFormatDescription(questionType models.QuestionType) string {
	switch questionType {
	case models.SingleChoice:
		return "an option id or option text as a string"
	case models.MultipleChoice:
		return "an array of option ids, or a single option id string"
	case models.TrueFalse:
		return `a boolean, or the strings "true"/"false"`
	case models.ShortAnswer:
		return "a non-empty string"
	case models.Essay:
		return "a non-empty string of free-form text"
	default:
		return "any JSON value matching the stored answer"
	}
}

// ===== COERCION HELPERS =====

func decodeOptions(question *models.Question) ([]models.ChoiceOption, error) {
	var options []models.ChoiceOption
	if err := json.Unmarshal(question.Options, &options); err != nil {
		return nil, fmt.Errorf("failed to decode options for question %d: %w", question.ID, err)
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("question %d has no options", question.ID)
	}
	return options, nil
}

func coerceChoiceSelection(answer interface{}) ([]string, error) {
	switch v := answer.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, NewValidationError("answer", "selection must not be empty", answer)
		}
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, NewValidationError("answer", "selection must not be empty", answer)
		}
		return v, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, NewValidationError("answer", "selection must not be empty", answer)
		}
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, NewValidationError("answer", "selections must be strings", answer)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, NewValidationError("answer", "unsupported selection shape", answer)
	}
}

func resolveOptionID(options []models.ChoiceOption, value string) (string, bool) {
	for _, opt := range options {
		if opt.ID == value {
			return opt.ID, true
		}
	}
	// Fall back to matching by option content.
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt.Text), strings.TrimSpace(value)) {
			return opt.ID, true
		}
	}
	return "", false
}

func coerceBool(answer interface{}) (bool, error) {
	switch v := answer.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, NewValidationError("answer", `expected a boolean or "true"/"false"`, answer)
}

func marshalChoiceAnswer(questionType models.QuestionType, ids []string) (json.RawMessage, error) {
	if questionType == models.SingleChoice && len(ids) == 1 {
		return json.Marshal(ids[0])
	}
	return json.Marshal(ids)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
