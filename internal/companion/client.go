package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dderg/invidious-downloader-sub001/internal/media"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

// Companion lookup failures. Callers match with errors.Is; the retry engine
// classifies the messages.
var (
	ErrNotFound    = errors.New("video not found")
	ErrUnavailable = errors.New("video unavailable")
	ErrAuth        = errors.New("companion authentication failed")
)

// ParseError wraps a malformed companion response.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing companion response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// VideoInfo is the companion's answer for one video. The stream URLs inside
// Tracks are valid for at least ExpiresInSeconds, though a 403 on any of
// them must be treated as expiry regardless.
type VideoInfo struct {
	Title            string                   `json:"title"`
	Tracks           []media.StreamDescriptor `json:"tracks"`
	ExpiresInSeconds int64                    `json:"expiresInSeconds"`
}

type Client struct {
	baseURL string
	client  utils.HTTPDoer
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  utils.NewArchiveHTTPClient(utils.HTTPClientConfig{Timeout: timeout}),
		timeout: timeout,
	}
}

// NewClientWithDoer is used by tests to inject a transport.
func NewClientWithDoer(baseURL string, doer utils.HTTPDoer) *Client {
	return &Client{baseURL: baseURL, client: doer, timeout: 30 * time.Second}
}

// GetVideoInfo fetches title, available tracks, and the URL TTL for a video.
func (c *Client) GetVideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	log := utils.GetLogger("companion")
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	url := fmt.Sprintf("%s/api/v1/videos/%s", c.baseURL, videoID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating companion request: %v", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying companion: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, videoID)
	default:
		return nil, fmt.Errorf("companion returned status %d", resp.StatusCode)
	}

	var info VideoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &ParseError{Err: err}
	}
	log.Debug().Str("videoId", videoID).Int("tracks", len(info.Tracks)).Int64("ttl", info.ExpiresInSeconds).Msg("Video info fetched")
	return &info, nil
}
