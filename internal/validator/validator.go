package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/exam-service/internal/models"
)

// Validator wraps go-playground/validator with the exam service's custom
// rules and json-tag aware error reporting.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	// Report field names by json tag so validation errors line up with
	// request payloads.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerDomainRules()
	return v
}

func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	return ToValidationErrors(err)
}

func (v *Validator) registerDomainRules() {
	_ = v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.SingleChoice, models.MultipleChoice, models.TrueFalse, models.ShortAnswer, models.Essay:
			return true
		}
		return false
	})

	_ = v.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		switch models.DifficultyLevel(fl.Field().String()) {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
			return true
		}
		return false
	})

	_ = v.validate.RegisterValidation("attempt_status", func(fl validator.FieldLevel) bool {
		switch models.AttemptStatus(fl.Field().String()) {
		case models.AttemptInProgress, models.AttemptCompleted, models.AttemptGraded, models.AttemptCancelled:
			return true
		}
		return false
	})
}

// ===== ERROR REPORTING =====

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Message
	}
	return strings.Join(parts, "; ")
}

func ToValidationErrors(err error) ValidationErrors {
	var result ValidationErrors

	if already, ok := err.(ValidationErrors); ok {
		return already
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			result = append(result, FieldError{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: fmt.Sprintf("field %q failed rule %q", fe.Field(), fe.Tag()),
			})
		}
		return result
	}

	return ValidationErrors{{Field: "", Rule: "", Message: err.Error()}}
}
