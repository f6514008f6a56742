package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dderg/invidious-downloader-sub001/internal/companion"
	"github.com/dderg/invidious-downloader-sub001/internal/download"
	"github.com/dderg/invidious-downloader-sub001/internal/fetch"
	"github.com/dderg/invidious-downloader-sub001/internal/media"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

// Provider hands out stream metadata and fresh URLs for a video.
type Provider interface {
	GetVideoInfo(ctx context.Context, videoID string) (*companion.VideoInfo, error)
}

// Archiver offloads completed files to remote storage. Offload failures are
// logged and never affect queue state.
type Archiver interface {
	UploadFile(ctx context.Context, path string) error
}

// QueueResult is the outcome of a QueueDownload call.
type QueueResult int

const (
	Queued QueueResult = iota
	AlreadyDownloaded
	AlreadyQueued
)

type EngineConfig struct {
	OutputDir      string
	MaxConcurrent  int
	PollInterval   time.Duration
	BaseRetryDelay time.Duration
	MaxAttempts    int
	Quality        media.Preference
	RateLimit      int64
	Throttle       *fetch.ThrottleConfig
	// TempMaxAge bounds how long orphaned temp track files survive before
	// the scheduled sweep removes them. Zero disables the sweep.
	TempMaxAge      time.Duration
	CleanupSchedule string
}

// Engine drives the queue: it polls for due items, enforces the admission
// cap, classifies terminal failures, and schedules bounded
// exponential-backoff retries. It is the single retry policy authority.
type Engine struct {
	cfg      EngineConfig
	store    Store
	provider Provider
	orch     *download.Orchestrator
	archiver Archiver

	inflight atomic.Int32
	polling  atomic.Bool
	cron     *cron.Cron
}

func NewEngine(cfg EngineConfig, store Store, provider Provider, orch *download.Orchestrator) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "@hourly"
	}
	return &Engine{cfg: cfg, store: store, provider: provider, orch: orch}
}

func (e *Engine) SetArchiver(a Archiver) {
	e.archiver = a
}

// RetryDelay computes the backoff before retry attempt retryCount:
// base, 4x base, 16x base, and so on.
func RetryDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return time.Duration(float64(base) * math.Pow(4, float64(retryCount-1)))
}

// QueueDownload enqueues a video unless it is already archived or already
// waiting.
func (e *Engine) QueueDownload(videoID, userID string, priority int) (QueueResult, error) {
	downloaded, err := e.store.IsDownloaded(videoID)
	if err != nil {
		return 0, fmt.Errorf("error checking downloads ledger: %v", err)
	}
	if downloaded {
		return AlreadyDownloaded, nil
	}
	queued, err := e.store.IsInQueue(videoID)
	if err != nil {
		return 0, fmt.Errorf("error checking queue: %v", err)
	}
	if queued {
		return AlreadyQueued, nil
	}
	if err := e.store.Enqueue(videoID, userID, priority); err != nil {
		return 0, fmt.Errorf("error enqueueing video: %v", err)
	}
	return Queued, nil
}

// Run polls the queue on a fixed interval until ctx is cancelled. A poll
// that finds a previous poll still in flight is a no-op rather than stacked
// work.
func (e *Engine) Run(ctx context.Context) error {
	log := utils.GetLogger("queue")
	if reset, err := e.store.ResetInterrupted(); err != nil {
		return fmt.Errorf("error resetting interrupted downloads: %v", err)
	} else if reset > 0 {
		log.Info().Int("count", reset).Msg("Re-queued downloads interrupted by restart")
	}
	if e.cfg.TempMaxAge > 0 {
		e.cron = cron.New()
		if _, err := e.cron.AddFunc(e.cfg.CleanupSchedule, func() { e.cleanupTempFiles() }); err != nil {
			return fmt.Errorf("error scheduling temp cleanup: %v", err)
		}
		e.cron.Start()
		defer e.cron.Stop()
	}
	log.Info().Dur("pollInterval", e.cfg.PollInterval).Int("maxConcurrent", e.cfg.MaxConcurrent).Msg("Queue engine started")

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	e.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

func (e *Engine) poll(ctx context.Context) {
	if !e.polling.CompareAndSwap(false, true) {
		return
	}
	defer e.polling.Store(false)
	log := utils.GetLogger("queue")
	for int(e.inflight.Load()) < e.cfg.MaxConcurrent {
		item, err := e.store.DequeueNext(time.Now())
		if err != nil {
			log.Error().Err(err).Msg("Error dequeuing next item")
			return
		}
		if item == nil {
			return
		}
		if err := e.store.UpdateStatus(item.VideoID, StatusDownloading, ""); err != nil {
			log.Error().Err(err).Str("videoId", item.VideoID).Msg("Error marking item downloading")
			return
		}
		e.inflight.Add(1)
		e.orch.UpsertProgress(item.VideoID, "", download.PhaseQueued)
		go func(item *Item) {
			defer e.inflight.Add(-1)
			e.process(ctx, item)
		}(item)
	}
}

func (e *Engine) process(ctx context.Context, item *Item) {
	log := utils.GetLogger("queue").With().Str("videoId", item.VideoID).Int("attempt", item.RetryCount+1).Logger()

	info, err := e.provider.GetVideoInfo(ctx, item.VideoID)
	if err != nil {
		log.Warn().Err(err).Msg("Video info lookup failed")
		e.handleFailure(item, err.Error())
		e.orch.RemoveProgress(item.VideoID)
		return
	}
	e.orch.UpsertProgress(item.VideoID, info.Title, download.PhaseQueued)

	streams := media.SelectStreams(info.Tracks, e.cfg.Quality)
	if streams.Video == nil || streams.Audio == nil {
		// Separate tracks incomplete; fall back to a combined stream.
		if streams.Combined == nil {
			log.Warn().Msg("No suitable streams found")
			e.handleFailure(item, "no suitable streams found")
			e.orch.RemoveProgress(item.VideoID)
			return
		}
		streams = &media.SelectedStreams{Combined: streams.Combined}
	}

	task := &download.Task{
		VideoID:   item.VideoID,
		Title:     info.Title,
		Streams:   streams,
		OutputDir: e.cfg.OutputDir,
		RateLimit: e.cfg.RateLimit,
		Resume:    item.RetryCount > 0,
		Throttle:  e.cfg.Throttle,
	}
	outcome, err := e.orch.DownloadVideo(ctx, task)
	defer e.orch.RemoveProgress(item.VideoID)
	if err != nil {
		var dlErr *download.Error
		if errors.As(err, &dlErr) && dlErr.Kind == download.KindCancelled {
			log.Info().Msg("Download cancelled")
			if updateErr := e.store.UpdateStatus(item.VideoID, StatusCancelled, ""); updateErr != nil {
				log.Error().Err(updateErr).Msg("Error persisting cancelled status")
			}
			return
		}
		log.Warn().Err(err).Msg("Download failed")
		e.handleFailure(item, err.Error())
		return
	}

	rec := DownloadRecord{
		VideoID:     item.VideoID,
		Title:       info.Title,
		FilePath:    outcome.FilePath,
		FileSize:    outcome.FileSize,
		CompletedAt: time.Now(),
	}
	if outcome.Video != nil {
		rec.VideoItag = outcome.Video.Itag
	}
	if outcome.Audio != nil {
		rec.AudioItag = outcome.Audio.Itag
	}
	if outcome.Combined != nil {
		rec.Itag = outcome.Combined.Itag
	}
	if err := e.store.AddDownload(rec); err != nil {
		log.Error().Err(err).Msg("Error recording completed download")
	}
	if err := e.store.UpdateStatus(item.VideoID, StatusCompleted, ""); err != nil {
		log.Error().Err(err).Msg("Error persisting completed status")
	}
	log.Info().Str("file", outcome.FilePath).Str("size", utils.FormatBytes(uint64(outcome.FileSize))).Msg("Download completed")

	if e.archiver != nil {
		e.offload(ctx, item.VideoID, outcome)
	}
}

// handleFailure is the only place retry decisions are made: permanent errors
// fail immediately, exhausted items fail with an annotated message, and
// everything else is rescheduled with exponential backoff.
func (e *Engine) handleFailure(item *Item, message string) {
	log := utils.GetLogger("queue").With().Str("videoId", item.VideoID).Logger()
	category := ClassifyError(message)
	if category == CategoryPermanent {
		log.Warn().Str("category", category.String()).Str("error", message).Msg("Permanent failure, not retrying")
		if err := e.store.UpdateStatus(item.VideoID, StatusFailed, message); err != nil {
			log.Error().Err(err).Msg("Error persisting failed status")
		}
		return
	}
	if item.RetryCount >= e.cfg.MaxAttempts {
		annotated := fmt.Sprintf("max retries reached (%d): %s", e.cfg.MaxAttempts, message)
		log.Warn().Str("error", message).Msg("Retry budget exhausted")
		if err := e.store.UpdateStatus(item.VideoID, StatusFailed, annotated); err != nil {
			log.Error().Err(err).Msg("Error persisting failed status")
		}
		return
	}
	retryCount := item.RetryCount + 1
	delay := RetryDelay(e.cfg.BaseRetryDelay, retryCount)
	nextRetryAt := time.Now().Add(delay)
	log.Info().Str("category", category.String()).Int("retry", retryCount).Int("max", e.cfg.MaxAttempts).Time("nextRetryAt", nextRetryAt).Msg("Retry scheduled")
	if err := e.store.ScheduleRetry(item.VideoID, message, retryCount, nextRetryAt); err != nil {
		log.Error().Err(err).Msg("Error scheduling retry")
	}
}

func (e *Engine) offload(ctx context.Context, videoID string, outcome *download.Outcome) {
	log := utils.GetLogger("archive").With().Str("videoId", videoID).Logger()
	if err := e.archiver.UploadFile(ctx, outcome.FilePath); err != nil {
		log.Error().Err(err).Str("file", outcome.FilePath).Msg("Archive offload failed")
		return
	}
	log.Info().Str("file", outcome.FilePath).Msg("Archive offload completed")
}

// cleanupTempFiles removes orphaned temp track files older than the
// configured age. Files belonging to an active download are always kept.
func (e *Engine) cleanupTempFiles() {
	log := utils.GetLogger("cleanup")
	tempDir := filepath.Join(e.cfg.OutputDir, download.TempDirName)
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Msg("Error reading temp directory")
		}
		return
	}
	active := e.orch.GetActiveDownloads()
	cutoff := time.Now().Add(-e.cfg.TempMaxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		owned := false
		for _, id := range active {
			if strings.HasPrefix(name, id+"_") || strings.HasPrefix(name, id+".") {
				owned = true
				break
			}
		}
		if owned {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, name)); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Stale temp files cleaned up")
	}
}
