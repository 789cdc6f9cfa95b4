package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ExamTemplate is the reusable definition an attempt is built from: the
// question-selection rule, duration and result-visibility policy. Templates
// are authored elsewhere; the attempt core treats them as read-only.
type ExamTemplate struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	QuestionCount   int `json:"question_count" gorm:"not null" validate:"required,min=1,max=200"`
	DurationSeconds int `json:"duration_seconds" gorm:"not null" validate:"required,min=60,max=14400"`

	// Question selection. Exactly one strategy applies, in priority order:
	// an explicit id list, a per-category distribution, or the whole pool.
	QuestionIDs  datatypes.JSON `json:"question_ids" gorm:"type:jsonb"`  // []uint
	Distribution datatypes.JSON `json:"distribution" gorm:"type:jsonb"` // []CategoryRule

	// Randomize is tri-state: nil means no explicit configuration, which
	// defaults to randomized ordering.
	Randomize *bool `json:"randomize"`

	// Result policy
	PassingScore        int  `json:"passing_score" gorm:"default:70" validate:"min=0,max=100"` // percent
	ShowCorrectAnswers  bool `json:"show_correct_answers" gorm:"default:false"`
	ShowExplanation     bool `json:"show_explanation" gorm:"default:false"`
	ShowScoreBreakdown  bool `json:"show_score_breakdown" gorm:"default:true"`

	IsActive  bool   `json:"is_active" gorm:"default:true;index"`
	CreatedBy string `json:"created_by" gorm:"not null;index;size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Creator User `json:"creator" gorm:"foreignKey:CreatedBy"`
}

func (ExamTemplate) TableName() string {
	return "exam_templates"
}

// CategoryRule is one entry of a category/difficulty distribution: take Count
// questions from CategoryID, optionally narrowed to a difficulty.
type CategoryRule struct {
	CategoryID uint             `json:"category_id"`
	Count      int              `json:"count"`
	Difficulty *DifficultyLevel `json:"difficulty,omitempty"`
}

// RandomizeEnabled resolves the tri-state flag: absent configuration means
// randomize.
func (t *ExamTemplate) RandomizeEnabled() bool {
	return t.Randomize == nil || *t.Randomize
}

// UsesExplicitSelection reports whether the template declares an explicit
// question list at all, even one that sanitizes down to nothing.
func (t *ExamTemplate) UsesExplicitSelection() bool {
	return len(t.QuestionIDs) > 0 && string(t.QuestionIDs) != "null"
}

// ExplicitQuestionIDs decodes the explicit selection list, keeping only
// positive ids. Authoring lives in another service, so zero and negative
// entries are dropped here rather than trusted.
func (t *ExamTemplate) ExplicitQuestionIDs() ([]uint, error) {
	if !t.UsesExplicitSelection() {
		return nil, nil
	}
	var raw []int64
	if err := json.Unmarshal(t.QuestionIDs, &raw); err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(raw))
	for _, id := range raw {
		if id > 0 {
			ids = append(ids, uint(id))
		}
	}
	return ids, nil
}

// CategoryRules decodes the distribution config, preserving declaration order.
func (t *ExamTemplate) CategoryRules() ([]CategoryRule, error) {
	if len(t.Distribution) == 0 {
		return nil, nil
	}
	var rules []CategoryRule
	if err := json.Unmarshal(t.Distribution, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
