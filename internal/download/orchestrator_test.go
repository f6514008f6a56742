package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dderg/invidious-downloader-sub001/internal/media"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

func testOrchestrator() *Orchestrator {
	return NewOrchestrator(utils.NewArchiveHTTPClient(utils.HTTPClientConfig{}))
}

func videoStream(url string) *media.StreamDescriptor {
	return &media.StreamDescriptor{
		Itag:     "137",
		URL:      url,
		MimeType: `video/mp4; codecs="avc1.640028"`,
		Bitrate:  4_000_000,
		Height:   1080,
	}
}

func audioStream(url string) *media.StreamDescriptor {
	return &media.StreamDescriptor{
		Itag:     "140",
		URL:      url,
		MimeType: `audio/mp4; codecs="mp4a.40.2"`,
		Bitrate:  128_000,
	}
}

func combinedStream(url string) *media.StreamDescriptor {
	return &media.StreamDescriptor{
		Itag:     "18",
		URL:      url,
		MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`,
		Bitrate:  700_000,
		Height:   360,
	}
}

func serveBody(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
}

func TestDownloadVideoNoStreams(t *testing.T) {
	_, err := testOrchestrator().DownloadVideo(context.Background(), &Task{
		VideoID:   "vid-empty",
		Streams:   &media.SelectedStreams{},
		OutputDir: t.TempDir(),
	})
	var dlErr *Error
	if !errors.As(err, &dlErr) || dlErr.Kind != KindNoStreams {
		t.Fatalf("expected KindNoStreams, got %v", err)
	}
}

func TestDownloadVideoDualStream(t *testing.T) {
	videoBody := strings.Repeat("v", 8192)
	audioBody := strings.Repeat("a", 2048)
	videoSrv := serveBody(videoBody)
	defer videoSrv.Close()
	audioSrv := serveBody(audioBody)
	defer audioSrv.Close()

	outputDir := t.TempDir()
	o := testOrchestrator()
	outcome, err := o.DownloadVideo(context.Background(), &Task{
		VideoID:   "dQw4w9WgXcQ",
		Title:     "test video",
		Streams:   &media.SelectedStreams{Video: videoStream(videoSrv.URL), Audio: audioStream(audioSrv.URL)},
		OutputDir: outputDir,
	})
	if err != nil {
		t.Fatalf("DownloadVideo failed: %v", err)
	}
	if outcome.FileSize != int64(len(videoBody)+len(audioBody)) {
		t.Errorf("expected combined size %d, got %d", len(videoBody)+len(audioBody), outcome.FileSize)
	}
	if outcome.Video == nil || outcome.Video.Itag != "137" || outcome.Audio == nil || outcome.Audio.Itag != "140" {
		t.Errorf("outcome track metadata wrong: %+v", outcome)
	}

	wantVideo := filepath.Join(outputDir, "dQw4w9WgXcQ_video_137.mp4")
	wantAudio := filepath.Join(outputDir, "dQw4w9WgXcQ_audio_140.m4a")
	if outcome.FilePath != wantVideo {
		t.Errorf("expected file path %s, got %s", wantVideo, outcome.FilePath)
	}
	for _, path := range []string{wantVideo, wantAudio} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("final file missing: %s", path)
		}
	}
	tempDir := filepath.Join(outputDir, TempDirName)
	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned after success: %d entries left", len(entries))
	}
	if o.GetActiveCount() != 0 {
		t.Errorf("active count should be 0 after completion, got %d", o.GetActiveCount())
	}
}

func TestDownloadVideoCombined(t *testing.T) {
	body := strings.Repeat("c", 4096)
	srv := serveBody(body)
	defer srv.Close()

	outputDir := t.TempDir()
	outcome, err := testOrchestrator().DownloadVideo(context.Background(), &Task{
		VideoID:   "abc123def45",
		Streams:   &media.SelectedStreams{Combined: combinedStream(srv.URL)},
		OutputDir: outputDir,
	})
	if err != nil {
		t.Fatalf("DownloadVideo failed: %v", err)
	}
	want := filepath.Join(outputDir, "abc123def45.mp4")
	if outcome.FilePath != want {
		t.Errorf("expected %s, got %s", want, outcome.FilePath)
	}
	if outcome.Combined == nil || outcome.Combined.Itag != "18" {
		t.Errorf("expected combined metadata, got %+v", outcome)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("combined file missing: %v", err)
	}
}

func TestDownloadVideoSingleAudioTrack(t *testing.T) {
	body := strings.Repeat("a", 1024)
	srv := serveBody(body)
	defer srv.Close()

	outputDir := t.TempDir()
	outcome, err := testOrchestrator().DownloadVideo(context.Background(), &Task{
		VideoID:   "audio-only1",
		Streams:   &media.SelectedStreams{Audio: audioStream(srv.URL)},
		OutputDir: outputDir,
	})
	if err != nil {
		t.Fatalf("DownloadVideo failed: %v", err)
	}
	want := filepath.Join(outputDir, "audio-only1_audio_140.m4a")
	if outcome.FilePath != want || outcome.Audio == nil {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestDownloadVideoExpiredURLKeepsTemps(t *testing.T) {
	audioBody := strings.Repeat("a", 1<<20)
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for chunk := 0; chunk < len(audioBody); chunk += 4096 {
			fmt.Fprint(w, audioBody[chunk:chunk+4096])
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer audioSrv.Close()

	outputDir := t.TempDir()
	_, err := testOrchestrator().DownloadVideo(context.Background(), &Task{
		VideoID:   "expired-url1",
		Streams:   &media.SelectedStreams{Video: videoStream(forbidden.URL), Audio: audioStream(audioSrv.URL)},
		OutputDir: outputDir,
	})
	var dlErr *Error
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if dlErr.Kind != KindDownloadFailed || !dlErr.RefreshURLs || !dlErr.Resumable {
		t.Fatalf("expected resumable refresh-URLs failure, got %+v", dlErr)
	}
}

func TestDownloadVideoCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 200; i++ {
			fmt.Fprint(w, strings.Repeat("v", 512))
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
	defer srv.Close()

	outputDir := t.TempDir()
	o := testOrchestrator()
	done := make(chan error, 1)
	go func() {
		_, err := o.DownloadVideo(context.Background(), &Task{
			VideoID:   "cancel-me-01",
			Streams:   &media.SelectedStreams{Combined: combinedStream(srv.URL)},
			OutputDir: outputDir,
		})
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for o.GetActiveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("download never became active")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !o.CancelDownload("cancel-me-01") {
		t.Fatal("CancelDownload reported no active download")
	}
	err := <-done
	var dlErr *Error
	if !errors.As(err, &dlErr) || dlErr.Kind != KindCancelled {
		t.Fatalf("expected KindCancelled, got %v", err)
	}
	if o.CancelDownload("cancel-me-01") {
		t.Error("second cancel should report nothing to cancel")
	}
}

func TestComputePaths(t *testing.T) {
	task := &Task{
		VideoID:   "xyz",
		OutputDir: "/media",
		Streams: &media.SelectedStreams{
			Video: &media.StreamDescriptor{Itag: "248", MimeType: "video/webm"},
			Audio: &media.StreamDescriptor{Itag: "140", MimeType: "audio/mp4"},
		},
	}
	p := computePaths(task)
	if p.tempVideo != "/media/.archive-temp/xyz_video_248.webm" {
		t.Errorf("tempVideo: %s", p.tempVideo)
	}
	if p.finalAudio != "/media/xyz_audio_140.m4a" {
		t.Errorf("finalAudio: %s", p.finalAudio)
	}
	if got := len(p.tempFiles()); got != 2 {
		t.Errorf("expected 2 temp files, got %d", got)
	}
}

func TestProgressRegistryLifecycle(t *testing.T) {
	o := testOrchestrator()
	o.UpsertProgress("vid1", "first", PhaseQueued)
	o.UpsertProgress("vid2", "second", PhaseDownloading)

	p, ok := o.GetProgress("vid1")
	if !ok || p.Title != "first" || p.Phase != PhaseQueued {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if got := len(o.GetAllProgress()); got != 2 {
		t.Errorf("expected 2 entries, got %d", got)
	}
	o.RemoveProgress("vid1")
	if _, ok := o.GetProgress("vid1"); ok {
		t.Error("vid1 should be gone after removal")
	}
}
