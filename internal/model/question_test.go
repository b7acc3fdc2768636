package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestOptionIsImage(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"https://cdn.example.com/figures/circuit.png", true},
		{"/uploads/options/diagram.JPEG", true},
		{"http://example.com/photo.webp", true},
		{"The mitochondria is the powerhouse of the cell", false},
		{"https://example.com/article", false},
		{"see figure.png in the booklet", false},
		{"", false},
	}
	for _, tc := range cases {
		o := Option{ID: uuid.New(), Content: tc.content}
		if got := o.IsImage(); got != tc.want {
			t.Errorf("IsImage(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestOptionByID(t *testing.T) {
	a := Option{ID: uuid.New(), Content: "a"}
	b := Option{ID: uuid.New(), Content: "b"}
	q := Question{ID: uuid.New(), QuestionType: QuestionTypeSingleChoice, Options: []Option{a, b}}

	got, ok := q.OptionByID(b.ID)
	if !ok || got.Content != "b" {
		t.Fatalf("OptionByID known id = %+v, %v", got, ok)
	}
	if _, ok := q.OptionByID(uuid.New()); ok {
		t.Fatal("OptionByID should miss on a foreign id")
	}
}

func TestQuestionTypeValid(t *testing.T) {
	for _, valid := range []QuestionType{QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeTrueFalseSet} {
		if !valid.Valid() {
			t.Errorf("%s should be valid", valid)
		}
	}
	if QuestionType("ESSAY").Valid() {
		t.Error("unknown type should be invalid")
	}
}
