package worker

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecodeAnswerPayload(t *testing.T) {
	examID := uuid.New()
	questionID := uuid.New()

	raw, err := json.Marshal(AnswerPayload{
		StudentID: 42,
		ExamID:    examID.String(),
		QID:       questionID.String(),
		Answer:    `{"type":"single","option_id":"a"}`,
	})
	require.NoError(t, err)

	payload, gotExam, gotQuestion, err := decodeAnswerPayload(raw)
	require.NoError(t, err)
	require.Equal(t, 42, payload.StudentID)
	require.Equal(t, examID, gotExam)
	require.Equal(t, questionID, gotQuestion)
}

// A payload that cannot decode must be classified as permanent so the
// consumer parks it instead of requeueing it in front of good items.
func TestDecodeAnswerPayloadRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"truncated json":  `{"student_id": 42, "exam_id"`,
		"bad exam uuid":   `{"student_id":42,"exam_id":"not-a-uuid","q_id":"` + uuid.New().String() + `"}`,
		"bad question id": `{"student_id":42,"exam_id":"` + uuid.New().String() + `","q_id":"nope"}`,
		"empty ids":       `{"student_id":42}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := decodeAnswerPayload([]byte(raw))
			require.Error(t, err)
		})
	}
}
