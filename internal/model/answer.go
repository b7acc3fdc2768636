package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Answer store errors. A type mismatch means the caller routed a
// selection to the wrong question — a programming error surfaced as an
// error value so a bad client payload can never corrupt stored shapes.
var (
	ErrAnswerTypeMismatch = errors.New("answer value shape does not match question type")
	ErrUnknownAnswerType  = errors.New("unknown question type for answer value")
)

// AnswerValue is the tagged union of the three answer shapes. Exactly
// one payload field is populated, selected by Type:
//
//	SINGLE_CHOICE  → Option (one option id, replaced wholesale)
//	MULTI_CHOICE   → Options (option id set with toggle semantics)
//	TRUE_FALSE_SET → Rows (option id → bool, merged per row)
//
// The zero AnswerValue (Type == "") is the "never answered" state.
type AnswerValue struct {
	Type    QuestionType       `json:"type"`
	Option  uuid.UUID          `json:"option,omitempty"`
	Options []uuid.UUID        `json:"options,omitempty"`
	Rows    map[uuid.UUID]bool `json:"rows,omitempty"`
}

// Selection is one incoming answer action from the client.
// For SINGLE_CHOICE and MULTI_CHOICE, Option carries the chosen option.
// For TRUE_FALSE_SET, Option is the statement row id and Row its value.
type Selection struct {
	Type   QuestionType `json:"type"`
	Option uuid.UUID    `json:"option"`
	Row    *bool        `json:"row,omitempty"`
}

// Apply merges a selection into the stored value and returns the new
// value, leaving the receiver untouched. Merge semantics per type:
// single choice replaces, multi choice toggles membership, true/false
// sets one row without touching the others.
func (v AnswerValue) Apply(sel Selection) (AnswerValue, error) {
	if v.Type != "" && v.Type != sel.Type {
		return AnswerValue{}, fmt.Errorf("%w: stored %s, got %s", ErrAnswerTypeMismatch, v.Type, sel.Type)
	}

	switch sel.Type {
	case QuestionTypeSingleChoice:
		return AnswerValue{Type: sel.Type, Option: sel.Option}, nil

	case QuestionTypeMultiChoice:
		next := make([]uuid.UUID, 0, len(v.Options)+1)
		removed := false
		for _, id := range v.Options {
			if id == sel.Option {
				removed = true
				continue
			}
			next = append(next, id)
		}
		if !removed {
			next = append(next, sel.Option)
		}
		return AnswerValue{Type: sel.Type, Options: next}, nil

	case QuestionTypeTrueFalseSet:
		if sel.Row == nil {
			return AnswerValue{}, fmt.Errorf("%w: true/false selection without row value", ErrAnswerTypeMismatch)
		}
		rows := make(map[uuid.UUID]bool, len(v.Rows)+1)
		for id, b := range v.Rows {
			rows[id] = b
		}
		rows[sel.Option] = *sel.Row
		return AnswerValue{Type: sel.Type, Rows: rows}, nil
	}

	return AnswerValue{}, fmt.Errorf("%w: %q", ErrUnknownAnswerType, sel.Type)
}

// IsEmpty reports whether the value counts as "not answered" for the
// navigation panel: the zero value, a nil single option, an empty option
// set, or an empty row map.
func (v AnswerValue) IsEmpty() bool {
	switch v.Type {
	case QuestionTypeSingleChoice:
		return v.Option == uuid.Nil
	case QuestionTypeMultiChoice:
		return len(v.Options) == 0
	case QuestionTypeTrueFalseSet:
		return len(v.Rows) == 0
	}
	return true
}

// Contains reports whether the multi-choice set includes the option.
// Always false for other shapes.
func (v AnswerValue) Contains(opt uuid.UUID) bool {
	if v.Type != QuestionTypeMultiChoice {
		return false
	}
	for _, id := range v.Options {
		if id == opt {
			return true
		}
	}
	return false
}

// ParseAnswerValue decodes a stored AnswerValue and validates its tag.
func ParseAnswerValue(raw []byte) (AnswerValue, error) {
	var v AnswerValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return AnswerValue{}, fmt.Errorf("decode answer value: %w", err)
	}
	if !v.Type.Valid() {
		return AnswerValue{}, fmt.Errorf("%w: %q", ErrUnknownAnswerType, v.Type)
	}
	return v, nil
}

// AnswerSet is the full working answer map of one attempt, keyed by
// question id, together with the doubtful flags. This is the JSON shape
// handed to the submission collaborator and returned by the resume
// endpoint.
type AnswerSet struct {
	Answers  map[uuid.UUID]AnswerValue `json:"answers"`
	Doubtful map[uuid.UUID]bool        `json:"doubtful"`
}

// AnsweredCount returns how many questions hold a non-empty value.
func (s AnswerSet) AnsweredCount() int {
	n := 0
	for _, v := range s.Answers {
		if !v.IsEmpty() {
			n++
		}
	}
	return n
}
