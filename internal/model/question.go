package model

import (
	"strings"

	"github.com/google/uuid"
)

// QuestionType discriminates how a question is answered and how its
// AnswerValue is shaped.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeTrueFalseSet QuestionType = "TRUE_FALSE_SET"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeTrueFalseSet:
		return true
	}
	return false
}

// Option is one selectable choice (or, for TRUE_FALSE_SET, one statement
// row) belonging to exactly one question.
type Option struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
}

// IsImage reports whether the option content looks like an image URL
// rather than display text. Display-mode hint only; never affects answer
// semantics.
func (o Option) IsImage() bool {
	c := strings.TrimSpace(o.Content)
	if !strings.HasPrefix(c, "http://") && !strings.HasPrefix(c, "https://") && !strings.HasPrefix(c, "/uploads/") {
		return false
	}
	lower := strings.ToLower(c)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Question is the canonical, read-only question as delivered to a
// session. Option order here is the canonical order; the per-student
// order is a frozen permutation computed at exam start.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	ExamID       uuid.UUID    `json:"exam_id"`
	QuestionText string       `json:"question_text"`
	ImageURL     *string      `json:"image_url,omitempty"`
	QuestionType QuestionType `json:"question_type"`
	Options      []Option     `json:"options"`
	OrderNum     int          `json:"order_num"`
}

// OptionByID returns the option with the given id, if present.
func (q *Question) OptionByID(id uuid.UUID) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}
