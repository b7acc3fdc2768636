package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/edulocus/cbt-session-service/internal/repository"
)

// MonitorService orchestrates live exam supervision reads.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// StudentProgressSnapshot holds the answered count and violation count for
// every student with recorded activity in an exam.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	ViolationCounts map[int]int64 // student_id → violation_count
	TotalViolations int64
}

// GetStudentProgress assembles the per-student progress view. Answered
// counts for in-progress students come from their live Redis hashes;
// finished students fall back to the durable rows. Violation counts ride
// along best-effort, the monitor still renders without them.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		persisted       map[int]int64
		violationCounts map[int]int64
		persistedErr    error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		persisted, persistedErr = s.monitorRepo.GetPersistedAnsweredCounts(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.monitorRepo.GetViolationCounts(ctx, examID)
	}()

	liveIDs, err := s.monitorRepo.GetInProgressStudentIDs(ctx, examID)
	if err != nil {
		wg.Wait()
		return nil, err
	}
	live, err := s.monitorRepo.GetLiveAnsweredCounts(ctx, examID, liveIDs)

	wg.Wait()

	if persistedErr != nil {
		return nil, persistedErr
	}
	for sid, count := range persisted {
		snapshot.AnsweredCounts[sid] = count
	}

	// Live hashes win over the trailing durable rows.
	if err == nil {
		for sid, count := range live {
			snapshot.AnsweredCounts[sid] = count
		}
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}
