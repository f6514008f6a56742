package download

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseQueued      Phase = "queued"
	PhaseDownloading Phase = "downloading"
	PhaseMuxing      Phase = "muxing"
	PhaseFinalizing  Phase = "finalizing"
)

// TrackProgress is one track's live download state.
type TrackProgress struct {
	BytesDownloaded  int64   `json:"bytesDownloaded"`
	TotalBytes       int64   `json:"totalBytes,omitempty"`
	Percentage       float64 `json:"percentage,omitempty"`
	SpeedBytesPerSec float64 `json:"speedBytesPerSec,omitempty"`
}

// Progress is the live state of one in-flight video, shared by reference
// with observers. It is mutated only through the owning download's registry
// calls; outside readers get copies.
type Progress struct {
	VideoID   string         `json:"videoId"`
	Title     string         `json:"title"`
	Phase     Phase          `json:"phase"`
	Video     *TrackProgress `json:"video,omitempty"`
	Audio     *TrackProgress `json:"audio,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
}

// progressRegistry owns the per-video progress map. The owning download's
// callback is the only writer for a given entry while it is active.
type progressRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Progress
}

func newProgressRegistry() *progressRegistry {
	return &progressRegistry{entries: make(map[string]*Progress)}
}

func (r *progressRegistry) upsert(videoID, title string, phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[videoID]; ok {
		entry.Phase = phase
		if title != "" {
			entry.Title = title
		}
		return
	}
	r.entries[videoID] = &Progress{
		VideoID:   videoID,
		Title:     title,
		Phase:     phase,
		StartedAt: time.Now(),
	}
}

func (r *progressRegistry) update(videoID string, fn func(*Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[videoID]; ok {
		fn(entry)
	}
}

func (r *progressRegistry) get(videoID string) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[videoID]
	if !ok {
		return Progress{}, false
	}
	return copyProgress(entry), true
}

func (r *progressRegistry) all() []Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Progress, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, copyProgress(entry))
	}
	return out
}

func (r *progressRegistry) remove(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, videoID)
}

func copyProgress(p *Progress) Progress {
	out := *p
	if p.Video != nil {
		v := *p.Video
		out.Video = &v
	}
	if p.Audio != nil {
		a := *p.Audio
		out.Audio = &a
	}
	return out
}
