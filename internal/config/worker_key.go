package config

type WorkerKeyStruct struct {
	PersistAnswersQueue     string
	PersistViolationsQueue  string
	PersistOrderQueue       string
	PersistSubmissionsQueue string
	DeadLetterQueue         string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:     "persist_answers_queue",
	PersistViolationsQueue:  "persist_violations_queue",
	PersistOrderQueue:       "persist_order_queue",
	PersistSubmissionsQueue: "persist_submissions_queue",
	DeadLetterQueue:         "persist_dead_letter_queue",
}
