package media

import "testing"

func video(itag string, height int, container string, bitrate int64) StreamDescriptor {
	return StreamDescriptor{
		Itag:     itag,
		URL:      "http://example.com/" + itag,
		MimeType: "video/" + container + "; codecs=\"vp9\"",
		Height:   height,
		Width:    height * 16 / 9,
		Bitrate:  bitrate,
	}
}

func audio(itag, container string, bitrate int64) StreamDescriptor {
	codec := "mp4a.40.2"
	if container == "webm" {
		codec = "opus"
	}
	return StreamDescriptor{
		Itag:     itag,
		URL:      "http://example.com/" + itag,
		MimeType: "audio/" + container + "; codecs=\"" + codec + "\"",
		Bitrate:  bitrate,
	}
}

func combinedTrack(itag string, height int, bitrate int64) StreamDescriptor {
	return StreamDescriptor{
		Itag:     itag,
		URL:      "http://example.com/" + itag,
		MimeType: "video/mp4; codecs=\"avc1.42001E, mp4a.40.2\"",
		Height:   height,
		Bitrate:  bitrate,
	}
}

func TestParsePreference(t *testing.T) {
	tests := []struct {
		in      string
		best    bool
		height  int
		wantErr bool
	}{
		{"best", true, 0, false},
		{"", true, 0, false},
		{"1080p", false, 1080, false},
		{"720", false, 720, false},
		{"garbage", false, 0, true},
		{"-1", false, 0, true},
	}
	for _, tt := range tests {
		pref, err := ParsePreference(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePreference(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePreference(%q): unexpected error %v", tt.in, err)
			continue
		}
		if pref.Best != tt.best || pref.MaxHeight != tt.height {
			t.Errorf("ParsePreference(%q) = %+v", tt.in, pref)
		}
	}
}

func TestSelectVideoHonorsHeightCeiling(t *testing.T) {
	tracks := []StreamDescriptor{
		video("243", 360, "webm", 300_000),
		video("136", 720, "mp4", 1_500_000),
		video("137", 1080, "mp4", 3_000_000),
	}
	pref, _ := ParsePreference("720p")
	selected := SelectStreams(tracks, pref)
	if selected.Video == nil {
		t.Fatal("expected a video selection")
	}
	if selected.Video.Height > 720 {
		t.Errorf("selected height %d exceeds requested ceiling 720", selected.Video.Height)
	}
	if selected.Video.Itag != "136" {
		t.Errorf("expected itag 136, got %s", selected.Video.Itag)
	}
}

func TestSelectVideoPermissiveFallback(t *testing.T) {
	// No candidate satisfies the ceiling: the full pool is reconsidered and
	// the pick may exceed the requested quality.
	tracks := []StreamDescriptor{
		video("136", 720, "mp4", 1_500_000),
		video("137", 1080, "mp4", 3_000_000),
	}
	pref, _ := ParsePreference("480p")
	selected := SelectStreams(tracks, pref)
	if selected.Video == nil {
		t.Fatal("selector returned nil from a nonempty pool")
	}
	if selected.Video.Itag != "137" {
		t.Errorf("expected best-of-pool itag 137, got %s", selected.Video.Itag)
	}
}

func TestSelectVideoContainerTieBreak(t *testing.T) {
	tracks := []StreamDescriptor{
		video("248", 1080, "webm", 3_500_000),
		video("137", 1080, "mp4", 3_000_000),
	}
	selected := SelectStreams(tracks, Preference{Best: true})
	if selected.Video == nil || selected.Video.Itag != "137" {
		t.Fatalf("expected mp4 to win the container tie-break, got %+v", selected.Video)
	}
}

func TestSelectVideoBitrateTieBreak(t *testing.T) {
	tracks := []StreamDescriptor{
		video("137a", 1080, "mp4", 3_000_000),
		video("137b", 1080, "mp4", 4_000_000),
	}
	selected := SelectStreams(tracks, Preference{Best: true})
	if selected.Video == nil || selected.Video.Itag != "137b" {
		t.Fatalf("expected higher bitrate to win, got %+v", selected.Video)
	}
}

func TestSelectAudioPrefersIndexableContainer(t *testing.T) {
	// mp4 audio at 128kbps must beat webm audio at 160kbps: the webm track
	// cannot be indexed for adaptive seeking later.
	tracks := []StreamDescriptor{
		audio("140", "mp4", 128_000),
		audio("251", "webm", 160_000),
	}
	selected := SelectStreams(tracks, Preference{Best: true})
	if selected.Audio == nil || selected.Audio.Itag != "140" {
		t.Fatalf("expected mp4 audio to win, got %+v", selected.Audio)
	}
}

func TestSelectAudioBitrateWithinContainer(t *testing.T) {
	tracks := []StreamDescriptor{
		audio("139", "mp4", 48_000),
		audio("140", "mp4", 128_000),
	}
	selected := SelectStreams(tracks, Preference{Best: true})
	if selected.Audio == nil || selected.Audio.Itag != "140" {
		t.Fatalf("expected higher bitrate mp4 audio, got %+v", selected.Audio)
	}
}

func TestSelectAudioIgnoresVideoQuality(t *testing.T) {
	tracks := []StreamDescriptor{
		video("243", 360, "webm", 300_000),
		audio("140", "mp4", 128_000),
	}
	pref, _ := ParsePreference("144p")
	selected := SelectStreams(tracks, pref)
	if selected.Audio == nil || selected.Audio.Itag != "140" {
		t.Fatalf("audio selection must be unconstrained by video quality, got %+v", selected.Audio)
	}
}

func TestSelectCombined(t *testing.T) {
	tracks := []StreamDescriptor{
		combinedTrack("18", 360, 500_000),
		combinedTrack("22", 720, 1_200_000),
	}
	pref, _ := ParsePreference("480p")
	selected := SelectStreams(tracks, pref)
	if selected.Video != nil {
		t.Errorf("combined tracks must not be selected as video-only, got %+v", selected.Video)
	}
	if selected.Combined == nil || selected.Combined.Itag != "18" {
		t.Fatalf("expected combined itag 18 under 480p ceiling, got %+v", selected.Combined)
	}
}

func TestSelectEmptyCategories(t *testing.T) {
	selected := SelectStreams(nil, Preference{Best: true})
	if !selected.Empty() {
		t.Error("expected empty selection for no candidates")
	}
	if selected.Video != nil || selected.Audio != nil || selected.Combined != nil {
		t.Error("all categories should be nil for no candidates")
	}
}

func TestDescriptorExt(t *testing.T) {
	mp4Audio := audio("140", "mp4", 0)
	if ext := mp4Audio.Ext(); ext != ".m4a" {
		t.Errorf("mp4 audio ext = %s", ext)
	}
	mp4Video := video("137", 1080, "mp4", 0)
	if ext := mp4Video.Ext(); ext != ".mp4" {
		t.Errorf("mp4 video ext = %s", ext)
	}
	webmAudio := audio("251", "webm", 0)
	if ext := webmAudio.Ext(); ext != ".webm" {
		t.Errorf("webm audio ext = %s", ext)
	}
}
