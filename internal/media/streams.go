package media

import "strings"

// StreamDescriptor is one encoded representation of a source video, as
// reported by the companion service. URLs expire after the TTL advertised
// alongside the video info.
type StreamDescriptor struct {
	Itag          string `json:"itag"`
	URL           string `json:"url"`
	MimeType      string `json:"mimeType"`
	Bitrate       int64  `json:"bitrate"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
}

// SelectedStreams holds the tracks chosen for a download. At least one field
// must be non-nil for a download to proceed; Combined is used as a fallback
// when separate tracks are unavailable.
type SelectedStreams struct {
	Video    *StreamDescriptor
	Audio    *StreamDescriptor
	Combined *StreamDescriptor
}

func (s *SelectedStreams) Empty() bool {
	return s == nil || (s.Video == nil && s.Audio == nil && s.Combined == nil)
}

// Container extracts the container name from the descriptor's mime type,
// e.g. "video/mp4; codecs=..." -> "mp4".
func (d *StreamDescriptor) Container() string {
	mime := d.MimeType
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	if idx := strings.Index(mime, "/"); idx >= 0 {
		return strings.TrimSpace(mime[idx+1:])
	}
	return strings.TrimSpace(mime)
}

func (d *StreamDescriptor) IsVideo() bool {
	return strings.HasPrefix(d.MimeType, "video/")
}

func (d *StreamDescriptor) IsAudio() bool {
	return strings.HasPrefix(d.MimeType, "audio/")
}

// Ext returns the file extension for the descriptor's container. Audio in an
// ISO-BMFF container gets .m4a so track files are self-describing on disk.
func (d *StreamDescriptor) Ext() string {
	switch d.Container() {
	case "mp4":
		if d.IsAudio() {
			return ".m4a"
		}
		return ".mp4"
	case "webm":
		return ".webm"
	case "3gpp":
		return ".3gp"
	default:
		return ".bin"
	}
}
