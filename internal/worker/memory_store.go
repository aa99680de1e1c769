package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"consultbot/internal/models"
)

// MemoryTaskStore keeps sync tasks in process memory. Used when no sqlite database is configured.
type MemoryTaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*models.SyncTask
	now    func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[int64]*models.SyncTask), now: time.Now}
}

func (s *MemoryTaskStore) CreateSyncTask(_ context.Context, task *models.SyncTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	task.ID = s.nextID
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	task.CreatedAt = s.now().UTC()
	c := *task
	s.tasks[c.ID] = &c
	return nil
}

func (s *MemoryTaskStore) GetPendingSyncTasks(_ context.Context, limit int) ([]models.SyncTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []models.SyncTask
	for _, t := range s.tasks {
		if t.Status != models.SyncStatusPending && t.Status != models.SyncStatusRetry {
			continue
		}
		if t.NextRetryAt != nil && t.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryTaskStore) UpdateSyncTaskStatus(_ context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("sync task %d not found", id)
	}
	t.Status = status
	t.NextRetryAt = nextRetryAt
	if errMsg != "" {
		e := errMsg
		t.LastError = &e
	}
	switch status {
	case models.SyncStatusRetry:
		t.RetryCount++
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		now := s.now().UTC()
		t.ProcessedAt = &now
	}
	return nil
}

// Task returns a copy of the stored task.
func (s *MemoryTaskStore) Task(id int64) (models.SyncTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.SyncTask{}, false
	}
	return *t, true
}
