package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

const (
	queueFileName     = "queue.json"
	downloadsFileName = "downloads.json"
)

// FileStore persists the queue and the completed-downloads ledger as JSON
// manifests under a data directory. Writes go through a temp-file rename so
// a crash never leaves a torn manifest.
type FileStore struct {
	MemStore
	dataDir string
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %v", err)
	}
	s := &FileStore{
		MemStore: MemStore{
			items:     make(map[string]*Item),
			downloads: make(map[string]DownloadRecord),
		},
		dataDir: dataDir,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	if err := readManifest(filepath.Join(s.dataDir, queueFileName), &s.items); err != nil {
		return err
	}
	return readManifest(filepath.Join(s.dataDir, downloadsFileName), &s.downloads)
}

func readManifest(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading manifest %s: %v", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing manifest %s: %v", path, err)
	}
	return nil
}

// persistQueue must be called with s.mu held.
func (s *FileStore) persistQueue() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding queue manifest: %v", err)
	}
	return utils.AtomicWriteFile(filepath.Join(s.dataDir, queueFileName), data, 0644)
}

func (s *FileStore) persistDownloads() error {
	data, err := json.MarshalIndent(s.downloads, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding downloads manifest: %v", err)
	}
	return utils.AtomicWriteFile(filepath.Join(s.dataDir, downloadsFileName), data, 0644)
}

func (s *FileStore) Enqueue(videoID, userID string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enqueueItem(s.items, videoID, userID, priority)
	return s.persistQueue()
}

func (s *FileStore) UpdateStatus(videoID string, status Status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[videoID]
	if !ok {
		return fmt.Errorf("queue item not found: %s", videoID)
	}
	applyStatus(item, status, errorMessage, time.Now())
	return s.persistQueue()
}

func (s *FileStore) ScheduleRetry(videoID, errorMessage string, retryCount int, nextRetryAt time.Time) error {
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
	return s.persistQueue()
}

func (s *FileStore) AddDownload(rec DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads[rec.VideoID] = rec
	return s.persistDownloads()
}

func (s *FileStore) ResetInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items {
		if item.Status == StatusDownloading {
			item.Status = StatusPending
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.persistQueue()
}
