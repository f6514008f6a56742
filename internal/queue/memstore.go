package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It backs tests and one-shot CLI runs that
// have no persistence directory.
type MemStore struct {
	mu        sync.Mutex
	items     map[string]*Item
	downloads map[string]DownloadRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		items:     make(map[string]*Item),
		downloads: make(map[string]DownloadRecord),
	}
}

func (s *MemStore) Enqueue(videoID, userID string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enqueueItem(s.items, videoID, userID, priority)
	return nil
}

// enqueueItem inserts a new pending item, or revives an existing failed or
// cancelled one with a fresh retry budget. Pending, downloading, and
// completed items are left untouched.
func enqueueItem(items map[string]*Item, videoID, userID string, priority int) {
	if item, exists := items[videoID]; exists {
		if item.Status != StatusFailed && item.Status != StatusCancelled {
			return
		}
		item.Status = StatusPending
		item.RetryCount = 0
		item.NextRetryAt = nil
		item.ErrorMessage = ""
		item.CompletedAt = nil
		item.QueuedAt = time.Now()
		return
	}
	items[videoID] = &Item{
		VideoID:  videoID,
		UserID:   userID,
		Priority: priority,
		Status:   StatusPending,
		QueuedAt: time.Now(),
	}
}

func (s *MemStore) DequeueNext(now time.Time) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := nextDue(s.items, now)
	if candidate == nil {
		return nil, nil
	}
	out := *candidate
	return &out, nil
}

// nextDue picks the pending-and-due item with the highest priority, oldest
// first within a priority.
func nextDue(items map[string]*Item, now time.Time) *Item {
	var due []*Item
	for _, item := range items {
		if item.Status != StatusPending {
			continue
		}
		if item.NextRetryAt != nil && item.NextRetryAt.After(now) {
			continue
		}
		due = append(due, item)
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].QueuedAt.Before(due[j].QueuedAt)
	})
	return due[0]
}

func (s *MemStore) GetItem(videoID string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[videoID]
	if !ok {
		return nil, fmt.Errorf("queue item not found: %s", videoID)
	}
	out := *item
	return &out, nil
}

func (s *MemStore) UpdateStatus(videoID string, status Status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[videoID]
	if !ok {
		return fmt.Errorf("queue item not found: %s", videoID)
	}
	applyStatus(item, status, errorMessage, time.Now())
	return nil
}

func applyStatus(item *Item, status Status, errorMessage string, now time.Time) {
	item.Status = status
	item.ErrorMessage = errorMessage
	switch status {
	case StatusDownloading:
		item.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		item.CompletedAt = &now
	}
}

func (s *MemStore) ScheduleRetry(videoID, errorMessage string, retryCount int, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[videoID]
	if !ok {
		return fmt.Errorf("queue item not found: %s", videoID)
	}
	item.Status = StatusPending
	item.ErrorMessage = errorMessage
	item.RetryCount = retryCount
	item.NextRetryAt = &nextRetryAt
	return nil
}

func (s *MemStore) IsDownloaded(videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.downloads[videoID]
	return ok, nil
}

func (s *MemStore) IsInQueue(videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[videoID]
	if !ok {
		return false, nil
	}
	return item.Status == StatusPending || item.Status == StatusDownloading, nil
}

func (s *MemStore) AddDownload(rec DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads[rec.VideoID] = rec
	return nil
}

func (s *MemStore) ResetInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items {
		if item.Status == StatusDownloading {
			item.Status = StatusPending
			count++
		}
	}
	return count, nil
}
