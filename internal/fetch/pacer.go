package fetch

import (
	"context"
	"time"
)

// LeadBuffer is the maximum fraction by which a paced audio track may run
// ahead of its video track.
const LeadBuffer = 0.02

const pacerPollInterval = 100 * time.Millisecond

// Pacer keeps an audio fetch in lock-step with its video fetch. Audio carries
// no throttle detector of its own; holding it against live video progress is
// the only backpressure it sees, so both tracks finish together even when
// only the video stream is being throttled server-side.
type Pacer struct {
	// videoFraction reports the video track's live completed fraction in
	// [0,1]. It must be safe to call from the audio goroutine.
	videoFraction func() float64

	// resumeFraction is the audio track's own already-downloaded fraction at
	// resume time, captured on the first Wait call (before the first chunk
	// is consumed). A resumed audio track that legitimately starts ahead of
	// a freshly-resumed video is allowed to hold its lead rather than being
	// throttled against its own past progress.
	resumeFraction float64
	captured       bool
}

func NewPacer(videoFraction func() float64) *Pacer {
	return &Pacer{videoFraction: videoFraction}
}

// Wait blocks before the next audio chunk while the audio track is too far
// ahead of the video track. It returns once the video catches up, the video
// reaches 100%, or ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context, downloaded, total int64) error {
	if total <= 0 {
		return nil
	}
	audioFraction := float64(downloaded) / float64(total)
	if !p.captured {
		p.captured = true
		p.resumeFraction = audioFraction
	}
	for audioFraction > p.resumeFraction && audioFraction > p.videoFraction()+LeadBuffer {
		if p.videoFraction() >= 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pacerPollInterval):
		}
	}
	return nil
}
