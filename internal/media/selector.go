package media

import (
	"fmt"
	"strconv"
	"strings"
)

// preferredContainer is the multiplexed container favored on ties. webm audio
// cannot be indexed for adaptive seeking later, so audio selection treats the
// ISO-BMFF container as strictly preferred (see pickAudio).
const preferredContainer = "mp4"

// Preference is a parsed quality preference: either "best" (no height
// ceiling) or a target height in pixels.
type Preference struct {
	Best      bool
	MaxHeight int
}

// ParsePreference accepts "best" or a height such as "1080p", "720", "480p".
func ParsePreference(s string) (Preference, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "best" {
		return Preference{Best: true}, nil
	}
	h, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || h <= 0 {
		return Preference{}, fmt.Errorf("invalid quality preference %q", s)
	}
	return Preference{MaxHeight: h}, nil
}

// SelectStreams picks the video, audio, and combined tracks for a download.
// Video honors the height ceiling when any candidate satisfies it; when none
// does, the full pool is considered again, which may exceed the requested
// quality.
func SelectStreams(tracks []StreamDescriptor, pref Preference) *SelectedStreams {
	var video, audio, combined []StreamDescriptor
	for _, t := range tracks {
		switch {
		case t.IsAudio():
			audio = append(audio, t)
		case t.IsVideo():
			video = append(video, t)
		}
	}
	// Combined tracks carry both; upstream reports them as video/* with an
	// audio codec listed in the mime parameters.
	videoOnly := video[:0:0]
	for _, t := range video {
		if isCombined(t) {
			combined = append(combined, t)
		} else {
			videoOnly = append(videoOnly, t)
		}
	}
	return &SelectedStreams{
		Video:    pickVideo(videoOnly, pref),
		Audio:    pickAudio(audio),
		Combined: pickVideo(combined, pref),
	}
}

func isCombined(t StreamDescriptor) bool {
	return strings.Contains(t.MimeType, "mp4a") || strings.Contains(t.MimeType, "opus")
}

// pickVideo applies the height-ceiling-then-container-then-bitrate rule to a
// candidate pool. Also used for combined tracks.
func pickVideo(candidates []StreamDescriptor, pref Preference) *StreamDescriptor {
	var pool []StreamDescriptor
	for _, c := range candidates {
		if c.Height > 0 {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	eligible := pool
	if !pref.Best {
		var within []StreamDescriptor
		for _, c := range pool {
			if c.Height <= pref.MaxHeight {
				within = append(within, c)
			}
		}
		if len(within) > 0 {
			eligible = within
		}
		// Nothing satisfies the ceiling: fall through with the full pool.
	}
	best := eligible[0]
	for _, c := range eligible[1:] {
		if betterVideo(c, best) {
			best = c
		}
	}
	return &best
}

func betterVideo(a, b StreamDescriptor) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	aPref, bPref := a.Container() == preferredContainer, b.Container() == preferredContainer
	if aPref != bPref {
		return aPref
	}
	return a.Bitrate > b.Bitrate
}

// pickAudio always picks the best audio regardless of the requested video
// quality. The ISO-BMFF container wins over others outright, even at a lower
// bitrate, because the alternative container cannot be indexed for adaptive
// seeking when the cached file is served later.
func pickAudio(candidates []StreamDescriptor) *StreamDescriptor {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if betterAudio(c, best) {
			best = c
		}
	}
	return &best
}

func betterAudio(a, b StreamDescriptor) bool {
	aPref, bPref := a.Container() == preferredContainer, b.Container() == preferredContainer
	if aPref != bPref {
		return aPref
	}
	return a.Bitrate > b.Bitrate
}
