package fetch

import (
	"errors"
	"fmt"
)

// Failure kinds returned by the fetcher. These are never retried internally;
// the orchestrator inspects them to decide whether temp files survive.
var (
	// ErrThrottled means the rolling-average speed dropped below the
	// configured floor. The partial file is valid and resumable.
	ErrThrottled = errors.New("transfer throttled below minimum speed")

	// ErrURLExpired means the server answered 403. The partial file is valid;
	// the caller must obtain a fresh URL and retry with resume enabled.
	ErrURLExpired = errors.New("stream url expired")

	// ErrStartFresh means a range request came back 416 with no usable
	// partial file on disk. The caller must retry without resume.
	ErrStartFresh = errors.New("range not satisfiable, restart without resume")
)

// HTTPError is any other non-2xx response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}
