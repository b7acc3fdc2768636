package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session (JTI)
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AnswersKey returns the durable key for an attempt's answer hash.
// Answer fields are plain question ids; doubtful flags share the hash
// under the "doubt:" field prefix so one key carries the whole set.
func (r *CacheKeyStruct) AnswersKey(studentID int, examID string) string {
	return fmt.Sprintf("cbt_answers_%d_%s", studentID, examID)
}

// DoubtFieldPrefix marks doubtful-flag fields inside the answers hash.
const DoubtFieldPrefix = "doubt:"

// SessionStartKey returns the cache key for the authoritative start
// timestamp of a student's attempt (unix seconds).
func (r *CacheKeyStruct) SessionStartKey(studentID int, examID string) string {
	return fmt.Sprintf("student:%d:exam:%s:session_start", studentID, examID)
}

// PaperOrderKey returns the cache key for the frozen shuffle snapshot.
func (r *CacheKeyStruct) PaperOrderKey(studentID int, examID string) string {
	return fmt.Sprintf("student:%d:exam:%s:paper_order", studentID, examID)
}

// ViolationCountKey returns the cache key for the strike counter.
func (r *CacheKeyStruct) ViolationCountKey(studentID int, examID string) string {
	return fmt.Sprintf("student:%d:exam:%s:violations", studentID, examID)
}

// CursorKey returns the cache key for the navigation cursor.
func (r *CacheKeyStruct) CursorKey(studentID int, examID string) string {
	return fmt.Sprintf("student:%d:exam:%s:cursor", studentID, examID)
}

// ForceResetKey returns the cache key for the admin-issued force-reset
// signal observed by the presence poll.
func (r *CacheKeyStruct) ForceResetKey(studentID int) string {
	return fmt.Sprintf("student:%d:force_reset", studentID)
}

// ExamPayloadKey returns the cache key for an exam's canonical paper
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamDurationKey returns the cache key for an exam's duration (seconds)
func (r *CacheKeyStruct) ExamDurationKey(examID string) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
