package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dderg/invidious-downloader-sub001/internal/fetch"
	"github.com/dderg/invidious-downloader-sub001/internal/media"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

// speed is recomputed over windows of at least this length so short bursts
// don't make the reported rate jump around.
const speedWindow = 500 * time.Millisecond

// Task describes one video download. It is created at dequeue time and owned
// by a single DownloadVideo invocation.
type Task struct {
	VideoID   string
	Title     string
	Streams   *media.SelectedStreams
	OutputDir string
	RateLimit int64
	Resume    bool
	Throttle  *fetch.ThrottleConfig
}

// TrackMeta identifies a downloaded track in the outcome.
type TrackMeta struct {
	Itag      string
	Bitrate   int64
	Container string
}

// Outcome is a successful download result.
type Outcome struct {
	FilePath string
	FileSize int64
	Video    *TrackMeta
	Audio    *TrackMeta
	Combined *TrackMeta
}

type FailureKind string

const (
	KindNoStreams      FailureKind = "no_streams"
	KindDownloadFailed FailureKind = "download_failed"
	KindFilesystem     FailureKind = "filesystem_error"
	KindCancelled      FailureKind = "cancelled"
)

// Error is the orchestrator's only failure type. Resumable reports whether
// temp files were preserved; RefreshURLs instructs the caller to obtain
// fresh stream URLs before retrying.
type Error struct {
	Kind        FailureKind
	Cause       error
	Resumable   bool
	RefreshURLs bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Orchestrator owns per-video download lifecycle: path layout, strategy
// choice, progress aggregation, failure classification, and atomic placement
// of finished files. Admission control lives in the caller; the orchestrator
// only exposes the active count.
type Orchestrator struct {
	fetcher  *fetch.Fetcher
	progress *progressRegistry
	mu       sync.Mutex
	active   map[string]context.CancelFunc
}

func NewOrchestrator(client utils.HTTPDoer) *Orchestrator {
	return &Orchestrator{
		fetcher:  fetch.NewFetcher(client),
		progress: newProgressRegistry(),
		active:   make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) GetActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) GetActiveDownloads() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

// CancelDownload aborts an in-flight download. The download returns a
// cancelled outcome, never an error outcome, and its temp files survive.
func (o *Orchestrator) CancelDownload(videoID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[videoID]
	if ok {
		delete(o.active, videoID)
	}
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) GetProgress(videoID string) (Progress, bool) {
	return o.progress.get(videoID)
}

func (o *Orchestrator) GetAllProgress() []Progress {
	return o.progress.all()
}

func (o *Orchestrator) UpsertProgress(videoID, title string, phase Phase) {
	o.progress.upsert(videoID, title, phase)
}

func (o *Orchestrator) RemoveProgress(videoID string) {
	o.progress.remove(videoID)
}

// DownloadVideo runs one download to completion. Every failure is returned
// as *Error; nothing escapes untyped.
func (o *Orchestrator) DownloadVideo(ctx context.Context, task *Task) (*Outcome, error) {
	log := utils.GetLogger("orchestrator").With().
		Str("videoId", task.VideoID).
		Str("session", uuid.NewString()[:8]).Logger()

	if task.Streams.Empty() {
		return nil, &Error{Kind: KindNoStreams}
	}
	paths := computePaths(task)
	if err := os.MkdirAll(task.OutputDir, 0755); err != nil {
		return nil, &Error{Kind: KindFilesystem, Cause: err}
	}
	if err := os.MkdirAll(paths.tempDir, 0755); err != nil {
		return nil, &Error{Kind: KindFilesystem, Cause: err}
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.active[task.VideoID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, task.VideoID)
		o.mu.Unlock()
	}()

	o.progress.upsert(task.VideoID, task.Title, PhaseDownloading)

	if task.Streams.Video != nil && task.Streams.Audio != nil {
		log.Debug().Str("videoItag", task.Streams.Video.Itag).Str("audioItag", task.Streams.Audio.Itag).Msg("Starting dual-stream download")
		return o.downloadDualStream(dctx, log, task, paths)
	}
	if task.Streams.Combined != nil {
		log.Debug().Str("itag", task.Streams.Combined.Itag).Msg("Starting combined-stream download")
		return o.downloadCombined(dctx, task, paths)
	}
	// Single separate track (audio-only or video-only archival).
	return o.downloadSingleTrack(dctx, task, paths)
}

// trackMeter recomputes a track's transfer speed over windows of at least
// speedWindow and mirrors the numbers into the progress registry.
type trackMeter struct {
	mu        sync.Mutex
	lastAt    time.Time
	lastBytes int64
	speed     float64
}

func (m *trackMeter) observe(downloaded int64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.lastAt.IsZero() {
		m.lastAt = now
		m.lastBytes = downloaded
		return 0
	}
	elapsed := now.Sub(m.lastAt)
	if elapsed >= speedWindow {
		m.speed = float64(downloaded-m.lastBytes) / elapsed.Seconds()
		m.lastAt = now
		m.lastBytes = downloaded
	}
	return m.speed
}

func (o *Orchestrator) trackProgressFunc(videoID string, audio bool, meter *trackMeter) func(downloaded, total int64) {
	return func(downloaded, total int64) {
		speed := meter.observe(downloaded)
		o.progress.update(videoID, func(p *Progress) {
			tp := &TrackProgress{
				BytesDownloaded:  downloaded,
				TotalBytes:       total,
				SpeedBytesPerSec: speed,
			}
			if total > 0 {
				tp.Percentage = float64(downloaded) / float64(total) * 100
			}
			if audio {
				p.Audio = tp
			} else {
				p.Video = tp
			}
		})
	}
}

func (o *Orchestrator) downloadDualStream(ctx context.Context, log zerolog.Logger, task *Task, paths taskPaths) (*Outcome, error) {
	var videoDown, videoTotal atomic.Int64
	var videoDone atomic.Bool
	videoTotal.Store(-1)
	videoFraction := func() float64 {
		if videoDone.Load() {
			return 1
		}
		total := videoTotal.Load()
		if total <= 0 {
			return 0
		}
		return float64(videoDown.Load()) / float64(total)
	}

	var videoMeter, audioMeter trackMeter
	videoProgress := o.trackProgressFunc(task.VideoID, false, &videoMeter)
	audioProgress := o.trackProgressFunc(task.VideoID, true, &audioMeter)

	var wg sync.WaitGroup
	var videoRes, audioRes *fetch.Result
	var videoErr, audioErr error

	// Either track failing aborts the other; classifyFailure later picks the
	// real cause over the induced cancellation.
	trackCtx, abort := context.WithCancel(ctx)
	defer abort()

	wg.Add(2)
	go func() {
		defer wg.Done()
		videoRes, videoErr = o.fetcher.Fetch(trackCtx, task.Streams.Video.URL, paths.tempVideo, fetch.Options{
			RateLimit: task.RateLimit,
			Resume:    task.Resume,
			Throttle:  task.Throttle,
			Progress: func(downloaded, total int64) {
				videoDown.Store(downloaded)
				videoTotal.Store(total)
				videoProgress(downloaded, total)
			},
		})
		if videoErr != nil {
			abort()
		} else {
			videoDone.Store(true)
		}
	}()
	go func() {
		defer wg.Done()
		// Audio has no throttle detector; it inherits backpressure from the
		// video track through the pacer only.
		audioRes, audioErr = o.fetcher.Fetch(trackCtx, task.Streams.Audio.URL, paths.tempAudio, fetch.Options{
			RateLimit: task.RateLimit,
			Resume:    task.Resume,
			Gate:      fetch.NewPacer(videoFraction),
			Progress:  audioProgress,
		})
		if audioErr != nil {
			abort()
		}
	}()
	wg.Wait()

	if videoErr != nil || audioErr != nil {
		return nil, o.classifyFailure(ctx, task, paths, videoErr, audioErr)
	}

	o.progress.upsert(task.VideoID, task.Title, PhaseFinalizing)
	if err := utils.MoveFile(paths.tempVideo, paths.finalVideo); err != nil {
		return nil, &Error{Kind: KindFilesystem, Cause: err, Resumable: true}
	}
	if err := utils.MoveFile(paths.tempAudio, paths.finalAudio); err != nil {
		return nil, &Error{Kind: KindFilesystem, Cause: err, Resumable: true}
	}
	o.finalProgressFlush(task.VideoID, videoRes.Size, audioRes.Size)
	log.Debug().Int64("videoSize", videoRes.Size).Int64("audioSize", audioRes.Size).Msg("Dual-stream download completed")

	return &Outcome{
		FilePath: paths.finalVideo,
		FileSize: videoRes.Size + audioRes.Size,
		Video:    trackMetaOf(task.Streams.Video),
		Audio:    trackMetaOf(task.Streams.Audio),
	}, nil
}

func (o *Orchestrator) downloadCombined(ctx context.Context, task *Task, paths taskPaths) (*Outcome, error) {
	var meter trackMeter
	res, err := o.fetcher.Fetch(ctx, task.Streams.Combined.URL, paths.combined, fetch.Options{
		RateLimit: task.RateLimit,
		Resume:    task.Resume,
		Throttle:  task.Throttle,
		Progress:  o.trackProgressFunc(task.VideoID, false, &meter),
	})
	if err != nil {
		return nil, o.classifyFailure(ctx, task, paths, err)
	}
	o.finalProgressFlush(task.VideoID, res.Size, -1)
	return &Outcome{
		FilePath: res.Path,
		FileSize: res.Size,
		Combined: trackMetaOf(task.Streams.Combined),
	}, nil
}

func (o *Orchestrator) downloadSingleTrack(ctx context.Context, task *Task, paths taskPaths) (*Outcome, error) {
	stream, tempPath, finalPath, audio := task.Streams.Video, paths.tempVideo, paths.finalVideo, false
	if stream == nil {
		stream, tempPath, finalPath, audio = task.Streams.Audio, paths.tempAudio, paths.finalAudio, true
	}
	var meter trackMeter
	opts := fetch.Options{
		RateLimit: task.RateLimit,
		Resume:    task.Resume,
		Progress:  o.trackProgressFunc(task.VideoID, audio, &meter),
	}
	if !audio {
		opts.Throttle = task.Throttle
	}
	res, err := o.fetcher.Fetch(ctx, stream.URL, tempPath, opts)
	if err != nil {
		return nil, o.classifyFailure(ctx, task, paths, err)
	}
	o.progress.upsert(task.VideoID, task.Title, PhaseFinalizing)
	if err := utils.MoveFile(tempPath, finalPath); err != nil {
		return nil, &Error{Kind: KindFilesystem, Cause: err, Resumable: true}
	}
	if audio {
		o.finalProgressFlush(task.VideoID, -1, res.Size)
		return &Outcome{FilePath: finalPath, FileSize: res.Size, Audio: trackMetaOf(stream)}, nil
	}
	o.finalProgressFlush(task.VideoID, res.Size, -1)
	return &Outcome{FilePath: finalPath, FileSize: res.Size, Video: trackMetaOf(stream)}, nil
}

// finalProgressFlush pins each finished track at 100% so observers see a
// clean terminal state before the entry is removed.
func (o *Orchestrator) finalProgressFlush(videoID string, videoSize, audioSize int64) {
	o.progress.update(videoID, func(p *Progress) {
		if videoSize >= 0 {
			p.Video = &TrackProgress{BytesDownloaded: videoSize, TotalBytes: videoSize, Percentage: 100}
		}
		if audioSize >= 0 {
			p.Audio = &TrackProgress{BytesDownloaded: audioSize, TotalBytes: audioSize, Percentage: 100}
		}
	})
}

// classifyFailure maps per-track fetch failures to an orchestrator outcome
// and decides whether temp files survive, in priority order: throttled, URL
// expired, start-fresh, cancellation, then generic failure.
func (o *Orchestrator) classifyFailure(ctx context.Context, task *Task, paths taskPaths, errs ...error) *Error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	for _, err := range nonNil {
		if errors.Is(err, fetch.ErrThrottled) {
			return &Error{Kind: KindDownloadFailed, Cause: err, Resumable: true}
		}
	}
	for _, err := range nonNil {
		if errors.Is(err, fetch.ErrURLExpired) {
			return &Error{Kind: KindDownloadFailed, Cause: err, Resumable: true, RefreshURLs: true}
		}
	}
	for _, err := range nonNil {
		if errors.Is(err, fetch.ErrStartFresh) {
			o.removeTempFiles(paths)
			return &Error{Kind: KindDownloadFailed, Cause: err}
		}
	}
	allCancelled := true
	for _, err := range nonNil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			allCancelled = false
			break
		}
	}
	if allCancelled {
		return &Error{Kind: KindCancelled, Resumable: true}
	}
	cause := nonNil[0]
	if !task.Resume {
		o.removeTempFiles(paths)
	}
	return &Error{Kind: KindDownloadFailed, Cause: cause, Resumable: task.Resume}
}

func (o *Orchestrator) removeTempFiles(paths taskPaths) {
	for _, file := range paths.tempFiles() {
		os.Remove(file)
	}
}

func trackMetaOf(d *media.StreamDescriptor) *TrackMeta {
	return &TrackMeta{Itag: d.Itag, Bitrate: d.Bitrate, Container: d.Container()}
}
