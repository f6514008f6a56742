package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPacerPassesWhenBehindVideo(t *testing.T) {
	p := NewPacer(func() float64 { return 0.5 })
	done := make(chan error, 1)
	go func() { done <- p.Wait(context.Background(), 10, 100) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait blocked although audio is behind video")
	}
}

func TestPacerBlocksUntilVideoCatchesUp(t *testing.T) {
	var videoMilli atomic.Int64 // video fraction in thousandths
	p := NewPacer(func() float64 { return float64(videoMilli.Load()) / 1000 })

	// Prime resumeFraction at zero.
	if err := p.Wait(context.Background(), 0, 100); err != nil {
		t.Fatal(err)
	}

	released := make(chan error, 1)
	go func() { released <- p.Wait(context.Background(), 50, 100) }()
	select {
	case <-released:
		t.Fatal("Wait returned while audio led video by 50%")
	case <-time.After(250 * time.Millisecond):
	}
	videoMilli.Store(490) // within the lead buffer of 0.5
	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait never released after video caught up")
	}
}

func TestPacerAllowsResumeLead(t *testing.T) {
	// Audio resumes at 80% while video restarts from zero. The pacer must
	// not punish the audio track for its own prior progress.
	p := NewPacer(func() float64 { return 0 })
	done := make(chan error, 1)
	go func() { done <- p.Wait(context.Background(), 80, 100) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait blocked a resumed audio track at its resume offset")
	}
}

func TestPacerReleasesWhenVideoComplete(t *testing.T) {
	p := NewPacer(func() float64 { return 1 })
	if err := p.Wait(context.Background(), 0, 100); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Wait(context.Background(), 99, 100) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait blocked although video already finished")
	}
}

func TestPacerCancellation(t *testing.T) {
	p := NewPacer(func() float64 { return 0 })
	if err := p.Wait(context.Background(), 0, 100); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx, 50, 100) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait ignored cancellation")
	}
}

func TestPacerUnknownTotal(t *testing.T) {
	p := NewPacer(func() float64 { return 0 })
	if err := p.Wait(context.Background(), 500, -1); err != nil {
		t.Fatalf("Wait must pass through with unknown total, got %v", err)
	}
}
