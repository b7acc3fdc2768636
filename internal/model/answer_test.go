package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestApplySingleChoiceReplaces(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	v, err := AnswerValue{}.Apply(Selection{Type: QuestionTypeSingleChoice, Option: a})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.Option != a {
		t.Fatalf("expected option %s, got %s", a, v.Option)
	}

	v, err = v.Apply(Selection{Type: QuestionTypeSingleChoice, Option: b})
	if err != nil {
		t.Fatalf("apply replace: %v", err)
	}
	if v.Option != b {
		t.Fatalf("expected replacement with %s, got %s", b, v.Option)
	}
}

func TestApplyMultiChoiceToggleRoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	v, _ := AnswerValue{}.Apply(Selection{Type: QuestionTypeMultiChoice, Option: a})
	v, _ = v.Apply(Selection{Type: QuestionTypeMultiChoice, Option: b})
	if !v.Contains(a) || !v.Contains(b) {
		t.Fatalf("expected both options present, got %v", v.Options)
	}

	// Toggling the same option twice must return to the original set.
	v, _ = v.Apply(Selection{Type: QuestionTypeMultiChoice, Option: b})
	v, _ = v.Apply(Selection{Type: QuestionTypeMultiChoice, Option: b})
	if !v.Contains(b) {
		t.Fatalf("double toggle should restore membership, got %v", v.Options)
	}

	v, _ = v.Apply(Selection{Type: QuestionTypeMultiChoice, Option: a})
	v, _ = v.Apply(Selection{Type: QuestionTypeMultiChoice, Option: b})
	if !v.IsEmpty() {
		t.Fatalf("removing every option should leave an empty set, got %v", v.Options)
	}
}

func TestApplyTrueFalseSetMergesRows(t *testing.T) {
	row1, row2 := uuid.New(), uuid.New()
	yes, no := true, false

	v, err := AnswerValue{}.Apply(Selection{Type: QuestionTypeTrueFalseSet, Option: row1, Row: &yes})
	if err != nil {
		t.Fatalf("apply row1: %v", err)
	}
	v, err = v.Apply(Selection{Type: QuestionTypeTrueFalseSet, Option: row2, Row: &no})
	if err != nil {
		t.Fatalf("apply row2: %v", err)
	}

	// Setting one row must not disturb other rows of the same question.
	if got := v.Rows[row1]; got != true {
		t.Fatalf("row1 expected true, got %v", got)
	}
	if got := v.Rows[row2]; got != false {
		t.Fatalf("row2 expected false, got %v", got)
	}

	v, _ = v.Apply(Selection{Type: QuestionTypeTrueFalseSet, Option: row1, Row: &no})
	if v.Rows[row1] != false || v.Rows[row2] != false {
		t.Fatalf("row overwrite leaked into sibling rows: %v", v.Rows)
	}
}

func TestApplyRejectsShapeMismatch(t *testing.T) {
	v, _ := AnswerValue{}.Apply(Selection{Type: QuestionTypeSingleChoice, Option: uuid.New()})

	_, err := v.Apply(Selection{Type: QuestionTypeMultiChoice, Option: uuid.New()})
	if !errors.Is(err, ErrAnswerTypeMismatch) {
		t.Fatalf("expected ErrAnswerTypeMismatch, got %v", err)
	}

	_, err = AnswerValue{}.Apply(Selection{Type: QuestionTypeTrueFalseSet, Option: uuid.New()})
	if !errors.Is(err, ErrAnswerTypeMismatch) {
		t.Fatalf("true/false selection without row value must be rejected, got %v", err)
	}

	_, err = AnswerValue{}.Apply(Selection{Type: "ESSAY", Option: uuid.New()})
	if !errors.Is(err, ErrUnknownAnswerType) {
		t.Fatalf("expected ErrUnknownAnswerType, got %v", err)
	}
}

func TestIsEmptyRule(t *testing.T) {
	cases := []struct {
		name  string
		value AnswerValue
		empty bool
	}{
		{"zero value", AnswerValue{}, true},
		{"nil single option", AnswerValue{Type: QuestionTypeSingleChoice}, true},
		{"empty option set", AnswerValue{Type: QuestionTypeMultiChoice, Options: []uuid.UUID{}}, true},
		{"empty row map", AnswerValue{Type: QuestionTypeTrueFalseSet, Rows: map[uuid.UUID]bool{}}, true},
		{"single answered", AnswerValue{Type: QuestionTypeSingleChoice, Option: uuid.New()}, false},
		{"multi answered", AnswerValue{Type: QuestionTypeMultiChoice, Options: []uuid.UUID{uuid.New()}}, false},
		{"row answered false", AnswerValue{Type: QuestionTypeTrueFalseSet, Rows: map[uuid.UUID]bool{uuid.New(): false}}, false},
	}

	for _, tc := range cases {
		if got := tc.value.IsEmpty(); got != tc.empty {
			t.Errorf("%s: IsEmpty() = %v, want %v", tc.name, got, tc.empty)
		}
	}
}

func TestParseAnswerValueRoundTrip(t *testing.T) {
	orig := AnswerValue{Type: QuestionTypeMultiChoice, Options: []uuid.UUID{uuid.New(), uuid.New()}}

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseAnswerValue(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Options) != 2 || parsed.Type != orig.Type {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}

	if _, err := ParseAnswerValue([]byte(`{"type":"BOGUS"}`)); !errors.Is(err, ErrUnknownAnswerType) {
		t.Fatalf("expected tag validation failure, got %v", err)
	}
}

func TestAnsweredCount(t *testing.T) {
	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()
	set := AnswerSet{
		Answers: map[uuid.UUID]AnswerValue{
			q1: {Type: QuestionTypeSingleChoice, Option: uuid.New()},
			q2: {Type: QuestionTypeMultiChoice},
			q3: {Type: QuestionTypeTrueFalseSet, Rows: map[uuid.UUID]bool{uuid.New(): true}},
		},
	}
	if got := set.AnsweredCount(); got != 2 {
		t.Fatalf("AnsweredCount = %d, want 2", got)
	}
}
