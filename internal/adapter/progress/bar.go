package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"codepilot/internal/port"
)

// Bar renders scan progress as a terminal progress bar, printing each file's
// description above it.
type Bar struct {
	mu        sync.Mutex
	w         io.Writer
	label     string
	bar       *progressbar.ProgressBar
	startTime time.Time
}

func NewBar(w io.Writer, label string) *Bar {
	return &Bar{w: w, label: label}
}

func (b *Bar) Start(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.startTime = time.Now()
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", b.label)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(b.w)
		}),
	)
}

func (b *Bar) Report(p port.ScanProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}
	b.bar.Clear()
	fmt.Fprintf(b.w, "%s: %s\n", p.Path, p.Description)

	processed := p.Index + 1
	b.bar.Set(processed)

	elapsed := time.Since(b.startTime)
	rate := float64(processed) / elapsed.Seconds()
	if rate > 0 && processed < p.Total {
		eta := time.Duration(float64(p.Total-processed)/rate) * time.Second
		b.bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", b.label, formatDuration(eta)))
	}
}

func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		b.bar.Finish()
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// Recorder keeps every notification in order. Tests use it in place of the
// terminal bar.
type Recorder struct {
	mu       sync.Mutex
	total    int
	events   []port.ScanProgress
	finished bool
}

func (r *Recorder) Start(total int) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

func (r *Recorder) Report(p port.ScanProgress) {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
}

func (r *Recorder) Finish() {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}

func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *Recorder) Events() []port.ScanProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]port.ScanProgress(nil), r.events...)
}

func (r *Recorder) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

var (
	_ port.ProgressReporter = (*Bar)(nil)
	_ port.ProgressReporter = (*Recorder)(nil)
)
