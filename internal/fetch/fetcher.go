package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

// progress callbacks are capped to one per interval to keep overhead off the
// hot loop; a final flush after the loop guarantees observers see the end
// state regardless of timing.
const progressInterval = 100 * time.Millisecond

// Gate lets a caller hold the transfer before each chunk is consumed. Used
// to pace a dual-stream download's audio track against its video track.
type Gate interface {
	Wait(ctx context.Context, downloaded, total int64) error
}

// Options control a single Fetch invocation.
type Options struct {
	// RateLimit caps the transfer in bytes/sec. 0 disables limiting.
	RateLimit int64
	// Resume continues an existing partial file via a Range request.
	Resume bool
	// Throttle enables rolling-window slow-transfer detection.
	Throttle *ThrottleConfig
	// Progress receives cumulative byte counts. total is -1 when unknown.
	Progress func(downloaded, total int64)
	// Gate, when set, is consulted before every chunk.
	Gate Gate
}

// Result describes a completed fetch.
type Result struct {
	Path         string
	Size         int64
	Resumed      bool
	ResumeOffset int64
}

type Fetcher struct {
	client utils.HTTPDoer
}

func NewFetcher(client utils.HTTPDoer) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch streams url to outputPath, honoring the resume protocol:
// 206 appends at the existing offset, 200 despite a range restarts from zero,
// 416 with a partial file means a previous run already finished, 403 means
// the URL expired and the partial file is kept for a resumed retry.
func (f *Fetcher) Fetch(ctx context.Context, url, outputPath string, opts Options) (*Result, error) {
	log := utils.GetLogger("fetch")
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %v", err)
	}

	var resumeOffset int64
	if opts.Resume {
		if fileInfo, err := os.Stat(outputPath); err == nil && fileInfo.Size() > 0 {
			resumeOffset = fileInfo.Size()
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %v", err)
	}
	req.Header.Set("Connection", "keep-alive")
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
		log.Debug().Int64("offset", resumeOffset).Msg("Resuming with range request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("error executing GET request: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if resumeOffset > 0 {
			// Server ignored the range; prior progress is unusable.
			log.Warn().Int64("offset", resumeOffset).Msg("Server ignored range request, restarting from zero")
			resumeOffset = 0
		}
	case http.StatusPartialContent:
		// Range honored, append from the current offset.
	case http.StatusRequestedRangeNotSatisfiable:
		if resumeOffset > 0 {
			// The previous run already fetched the whole resource.
			log.Debug().Int64("size", resumeOffset).Msg("Range unsatisfiable with existing partial, treating as complete")
			return &Result{Path: outputPath, Size: resumeOffset, Resumed: true, ResumeOffset: resumeOffset}, nil
		}
		return nil, ErrStartFresh
	case http.StatusForbidden:
		return nil, ErrURLExpired
	default:
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	totalSize := int64(-1)
	if resp.ContentLength >= 0 {
		totalSize = resumeOffset + resp.ContentLength
	}

	flag := os.O_WRONLY | os.O_CREATE
	if resumeOffset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	outFile, err := os.OpenFile(outputPath, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening output file: %v", err)
	}
	defer outFile.Close()

	var bucket *tokenBucket
	if opts.RateLimit > 0 {
		bucket = newTokenBucket(opts.RateLimit)
	}
	var detector *throttleDetector
	if opts.Throttle != nil && opts.Throttle.MinSpeed > 0 && opts.Throttle.Window > 0 {
		detector = newThrottleDetector(*opts.Throttle)
	}

	downloaded := resumeOffset
	lastEmit := time.Time{}
	emit := func(force bool) {
		if opts.Progress == nil {
			return
		}
		now := time.Now()
		if !force && now.Sub(lastEmit) < progressInterval {
			return
		}
		lastEmit = now
		opts.Progress(downloaded, totalSize)
	}
	emit(true)

	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if opts.Gate != nil {
			if err := opts.Gate.Wait(ctx, downloaded, totalSize); err != nil {
				return nil, err
			}
		}
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if bucket != nil {
				if err := bucket.take(ctx, bytesRead); err != nil {
					return nil, err
				}
			}
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return nil, fmt.Errorf("error writing to output file: %v", writeErr)
			}
			downloaded += int64(bytesRead)
			if detector != nil && detector.observe(time.Now(), downloaded-resumeOffset) {
				emit(true)
				log.Warn().Int64("downloaded", downloaded).Msg("Transfer speed below threshold, aborting as throttled")
				return nil, ErrThrottled
			}
			emit(false)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("error reading response body: %v", readErr)
		}
	}
	emit(true)
	log.Debug().Int64("size", downloaded).Int64("resumeOffset", resumeOffset).Str("output", outputPath).Msg("Fetch completed")
	return &Result{Path: outputPath, Size: downloaded, Resumed: resumeOffset > 0, ResumeOffset: resumeOffset}, nil
}
