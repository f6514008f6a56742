package output

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dderg/invidious-downloader-sub001/internal/download"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

const progressBarWidth = 30

// Display renders live download progress in the terminal for interactive
// one-shot runs. It polls the orchestrator's progress accessors on a ticker
// and redraws in place.
type Display struct {
	orch     *download.Orchestrator
	doneCh   chan struct{}
	wg       sync.WaitGroup
	numLines int
}

func NewDisplay(orch *download.Orchestrator) *Display {
	return &Display{orch: orch, doneCh: make(chan struct{})}
}

func (d *Display) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.redraw()
			case <-d.doneCh:
				d.redraw()
				return
			}
		}
	}()
}

func (d *Display) Stop() {
	close(d.doneCh)
	d.wg.Wait()
	fmt.Println()
}

func (d *Display) redraw() {
	if d.numLines != 0 {
		fmt.Printf("\033[%dA\033[J", d.numLines)
	}
	lines := 0
	for _, p := range d.orch.GetAllProgress() {
		title := p.Title
		if title == "" {
			title = p.VideoID
		}
		title = truncateTitle(title, 40)
		fmt.Println(infoStyle.Render(fmt.Sprintf("%s [%s]", title, p.Phase)))
		lines++
		if p.Video != nil {
			fmt.Println(renderTrack("video", p.Video))
			lines++
		}
		if p.Audio != nil {
			fmt.Println(renderTrack("audio", p.Audio))
			lines++
		}
	}
	d.numLines = lines
}

// truncateTitle shortens a title to max display runes. Titles are arbitrary
// UTF-8, so slicing happens on runes, never bytes.
func truncateTitle(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func renderTrack(name string, tp *download.TrackProgress) string {
	bar := "[" + strings.Repeat(" ", 10) + strings.Repeat("*", 10) + strings.Repeat(" ", 10) + "]"
	if tp.TotalBytes > 0 {
		filled := int(tp.Percentage / 100 * progressBarWidth)
		if filled > progressBarWidth {
			filled = progressBarWidth
		}
		bar = "[" + strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled) + "]"
	}
	speed := ""
	if tp.SpeedBytesPerSec > 0 {
		speed = fmt.Sprintf(" %s/s", utils.FormatBytes(uint64(tp.SpeedBytesPerSec)))
	}
	return detailStyle.Render(fmt.Sprintf("  %s %s %5.1f%% %s%s",
		name, bar, tp.Percentage, utils.FormatBytes(uint64(tp.BytesDownloaded)), speed))
}
