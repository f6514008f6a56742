package fetch

import "time"

// ThrottleConfig enables rolling-window speed measurement. When the average
// transfer speed over the window falls below MinSpeed the fetch is aborted
// with ErrThrottled instead of stalling indefinitely.
type ThrottleConfig struct {
	Window   time.Duration
	MinSpeed int64 // bytes per second
}

type throttleSample struct {
	at    time.Time
	bytes int64 // cumulative
}

type throttleDetector struct {
	cfg     ThrottleConfig
	samples []throttleSample
}

func newThrottleDetector(cfg ThrottleConfig) *throttleDetector {
	return &throttleDetector{cfg: cfg}
}

// observe records a cumulative byte count and reports whether the transfer is
// considered throttled. The verdict is only rendered once the retained
// samples span at least 90% of the window, so a slow first second never
// trips the detector.
func (d *throttleDetector) observe(now time.Time, cumulative int64) bool {
	d.samples = append(d.samples, throttleSample{at: now, bytes: cumulative})
	cutoff := now.Add(-d.cfg.Window)
	for len(d.samples) > 1 && d.samples[0].at.Before(cutoff) {
		d.samples = d.samples[1:]
	}
	oldest, newest := d.samples[0], d.samples[len(d.samples)-1]
	span := newest.at.Sub(oldest.at)
	if span < d.cfg.Window*9/10 {
		return false
	}
	speed := float64(newest.bytes-oldest.bytes) / span.Seconds()
	return speed < float64(d.cfg.MinSpeed)
}
