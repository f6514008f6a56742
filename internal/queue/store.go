package queue

import "time"

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Item is one persisted queue entry. The store record is the single source
// of truth for retry state; it is updated before the in-memory download slot
// is released, so a restart mid-download always observes a consistent
// status.
type Item struct {
	VideoID      string     `json:"videoId"`
	UserID       string     `json:"userId,omitempty"`
	Priority     int        `json:"priority,omitempty"`
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retryCount"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	QueuedAt     time.Time  `json:"queuedAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// DownloadRecord is the completed-downloads ledger entry written on success.
type DownloadRecord struct {
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	FilePath    string    `json:"filePath"`
	FileSize    int64     `json:"fileSize"`
	VideoItag   string    `json:"videoItag,omitempty"`
	AudioItag   string    `json:"audioItag,omitempty"`
	Itag        string    `json:"itag,omitempty"` // combined-stream downloads
	CompletedAt time.Time `json:"completedAt"`
}

// Store is the persisted queue/record interface the engine drives. Enqueue
// is idempotent on videoID while an item is live; a failed or cancelled item
// is revived as a fresh pending entry, so manual retry stays possible after
// the automatic retry budget runs out.
type Store interface {
	Enqueue(videoID, userID string, priority int) error
	// DequeueNext returns the next pending item whose retry time is unset or
	// already past, ordered by priority then queue recency. nil means
	// nothing is due.
	DequeueNext(now time.Time) (*Item, error)
	GetItem(videoID string) (*Item, error)
	UpdateStatus(videoID string, status Status, errorMessage string) error
	ScheduleRetry(videoID, errorMessage string, retryCount int, nextRetryAt time.Time) error
	IsDownloaded(videoID string) (bool, error)
	IsInQueue(videoID string) (bool, error)
	AddDownload(rec DownloadRecord) error
	// ResetInterrupted flips crash artifacts (items stuck in `downloading`)
	// back to pending so they are re-dequeued after a restart.
	ResetInterrupted() (int, error)
}
