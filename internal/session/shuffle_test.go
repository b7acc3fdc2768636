package session

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/edulocus/cbt-session-service/internal/model"
)

func makeQuestions(n, opts int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		q := model.Question{
			ID:           uuid.New(),
			QuestionText: "q",
			QuestionType: model.QuestionTypeSingleChoice,
		}
		for j := 0; j < opts; j++ {
			q.Options = append(q.Options, model.Option{ID: uuid.New(), Content: "o"})
		}
		qs[i] = q
	}
	return qs
}

func idSet(qs []model.Question) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(qs))
	for _, q := range qs {
		set[q.ID] = true
	}
	return set
}

func TestShuffleIsPermutation(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 40} {
		canonical := makeQuestions(n, 4)
		shuffled, snap := Shuffle(canonical, rand.New(rand.NewSource(1)))

		if len(shuffled) != n || len(snap.Questions) != n {
			t.Fatalf("n=%d: wrong lengths %d/%d", n, len(shuffled), len(snap.Questions))
		}
		if !reflect.DeepEqual(idSet(shuffled), idSet(canonical)) {
			t.Fatalf("n=%d: question ids are not a permutation", n)
		}

		// Per-question option permutation.
		byID := make(map[uuid.UUID]model.Question)
		for _, q := range canonical {
			byID[q.ID] = q
		}
		for _, q := range shuffled {
			orig := byID[q.ID]
			got := make(map[uuid.UUID]bool)
			want := make(map[uuid.UUID]bool)
			for _, o := range q.Options {
				got[o.ID] = true
			}
			for _, o := range orig.Options {
				want[o.ID] = true
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("options of %s are not a permutation", q.ID)
			}
		}
	}
}

func TestShuffleDoesNotMutateCanonical(t *testing.T) {
	canonical := makeQuestions(10, 4)
	var origQ []uuid.UUID
	var origO []uuid.UUID
	for _, q := range canonical {
		origQ = append(origQ, q.ID)
		for _, o := range q.Options {
			origO = append(origO, o.ID)
		}
	}

	Shuffle(canonical, rand.New(rand.NewSource(7)))

	var afterQ []uuid.UUID
	var afterO []uuid.UUID
	for _, q := range canonical {
		afterQ = append(afterQ, q.ID)
		for _, o := range q.Options {
			afterO = append(afterO, o.ID)
		}
	}
	if !reflect.DeepEqual(origQ, afterQ) || !reflect.DeepEqual(origO, afterO) {
		t.Fatal("Shuffle mutated the canonical input")
	}
}

func TestApplyOrderFreezesShuffle(t *testing.T) {
	canonical := makeQuestions(12, 5)
	shuffled, snap := Shuffle(canonical, rand.New(rand.NewSource(42)))

	// Replaying the snapshot against the canonical list must reproduce
	// the exact order — this is what makes a reload unable to reshuffle.
	replayed, err := ApplyOrder(canonical, snap)
	if err != nil {
		t.Fatalf("ApplyOrder: %v", err)
	}
	if !reflect.DeepEqual(shuffled, replayed) {
		t.Fatal("replayed order differs from the original shuffle")
	}

	again, err := ApplyOrder(canonical, snap)
	if err != nil {
		t.Fatalf("ApplyOrder second pass: %v", err)
	}
	if !reflect.DeepEqual(replayed, again) {
		t.Fatal("repeated replay changed the order")
	}
}

func TestApplyOrderDetectsDrift(t *testing.T) {
	canonical := makeQuestions(5, 3)
	_, snap := Shuffle(canonical, rand.New(rand.NewSource(3)))

	if _, err := ApplyOrder(canonical[:4], snap); err == nil {
		t.Fatal("expected error for removed question")
	}

	mutated := make([]model.Question, len(canonical))
	copy(mutated, canonical)
	mutated[2].ID = uuid.New()
	if _, err := ApplyOrder(mutated, snap); err == nil {
		t.Fatal("expected error for replaced question id")
	}

	mutated = make([]model.Question, len(canonical))
	copy(mutated, canonical)
	mutated[1].Options = append([]model.Option(nil), mutated[1].Options...)
	mutated[1].Options[0].ID = uuid.New()
	if _, err := ApplyOrder(mutated, snap); err == nil {
		t.Fatal("expected error for replaced option id")
	}
}
