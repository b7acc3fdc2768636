package session

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/edulocus/cbt-session-service/internal/model"
)

// OrderSnapshot is the frozen per-attempt ordering: the shuffled question
// id sequence plus, per question, its shuffled option id sequence. It is
// computed exactly once when the session starts, persisted, and replayed
// on every later paper fetch so a reload can never reshuffle.
type OrderSnapshot struct {
	Questions []uuid.UUID               `json:"questions"`
	Options   map[uuid.UUID][]uuid.UUID `json:"options"`
}

// Shuffle produces a uniform random permutation of the canonical question
// list and, independently, of each question's options (Fisher–Yates on
// both levels). The canonical input is never mutated; the returned
// snapshot reproduces the exact ordering via ApplyOrder.
func Shuffle(canonical []model.Question, rng *rand.Rand) ([]model.Question, OrderSnapshot) {
	shuffled := make([]model.Question, len(canonical))
	for i, q := range canonical {
		cp := q
		cp.Options = append([]model.Option(nil), q.Options...)
		shuffled[i] = cp
	}

	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	snap := OrderSnapshot{
		Questions: make([]uuid.UUID, len(shuffled)),
		Options:   make(map[uuid.UUID][]uuid.UUID, len(shuffled)),
	}
	for qi := range shuffled {
		opts := shuffled[qi].Options
		for i := len(opts) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			opts[i], opts[j] = opts[j], opts[i]
		}

		snap.Questions[qi] = shuffled[qi].ID
		ids := make([]uuid.UUID, len(opts))
		for oi, o := range opts {
			ids[oi] = o.ID
		}
		snap.Options[shuffled[qi].ID] = ids
	}

	return shuffled, snap
}

// ApplyOrder reorders the canonical question list according to a
// previously persisted snapshot. It fails when the snapshot and the
// canonical list have drifted apart (a question or option was edited
// mid-exam), in which case the caller falls back to reshuffling.
func ApplyOrder(canonical []model.Question, snap OrderSnapshot) ([]model.Question, error) {
	if len(snap.Questions) != len(canonical) {
		return nil, fmt.Errorf("order snapshot has %d questions, exam has %d", len(snap.Questions), len(canonical))
	}

	byID := make(map[uuid.UUID]model.Question, len(canonical))
	for _, q := range canonical {
		byID[q.ID] = q
	}

	ordered := make([]model.Question, 0, len(snap.Questions))
	for _, qid := range snap.Questions {
		q, ok := byID[qid]
		if !ok {
			return nil, fmt.Errorf("order snapshot references unknown question %s", qid)
		}

		optIDs := snap.Options[qid]
		if len(optIDs) != len(q.Options) {
			return nil, fmt.Errorf("option order for question %s has %d entries, question has %d", qid, len(optIDs), len(q.Options))
		}
		opts := make([]model.Option, 0, len(optIDs))
		for _, oid := range optIDs {
			o, ok := q.OptionByID(oid)
			if !ok {
				return nil, fmt.Errorf("order snapshot references unknown option %s of question %s", oid, qid)
			}
			opts = append(opts, o)
		}
		q.Options = opts
		ordered = append(ordered, q)
	}

	return ordered, nil
}
