// Package progress renders a single-line transfer indicator on a terminal.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const DefaultInterval = 100 * time.Millisecond

// Bar tracks bytes written against an expected total and redraws itself in
// place. A total of 0 means the size is unknown. Bar is not safe for
// concurrent use.
type Bar struct {
	out      io.Writer
	label    string
	total    int64
	current  int64
	interval time.Duration
	now      func() time.Time
	started  time.Time
	lastDraw time.Time
	width    int
	finished bool
}

func New(out io.Writer, label string, total int64) *Bar {
	if out == nil {
		out = io.Discard
	}
	if total < 0 {
		total = 0
	}
	b := &Bar{
		out:      out,
		label:    label,
		total:    total,
		interval: DefaultInterval,
		now:      time.Now,
	}
	b.started = b.now()
	b.draw()
	return b
}

// Add advances the bar by n bytes.
func (b *Bar) Add(n int) {
	if n <= 0 || b.finished {
		return
	}
	b.current += int64(n)
	if b.now().Sub(b.lastDraw) >= b.interval {
		b.draw()
	}
}

// Write counts p so the bar can sit behind an io.MultiWriter.
func (b *Bar) Write(p []byte) (int, error) {
	b.Add(len(p))
	return len(p), nil
}

func (b *Bar) Current() int64 { return b.current }

func (b *Bar) Total() int64 { return b.total }

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	if b.finished {
		return
	}
	b.draw()
	b.finished = true
	_, _ = io.WriteString(b.out, "\n")
}

// String renders the current state, e.g.
// "S5P_NO2.zip:  50% 1.0 KiB / 2.0 KiB [512 KiB/s]".
func (b *Bar) String() string {
	var sb strings.Builder
	sb.WriteString(b.label)
	sb.WriteString(": ")
	if b.total > 0 {
		pct := b.current * 100 / b.total
		if pct > 100 {
			pct = 100
		}
		fmt.Fprintf(&sb, "%3d%% %s / %s", pct, humanize.IBytes(uint64(b.current)), humanize.IBytes(uint64(b.total)))
	} else {
		sb.WriteString(humanize.IBytes(uint64(b.current)))
	}
	if elapsed := b.now().Sub(b.started).Seconds(); elapsed > 0 {
		rate := float64(b.current) / elapsed
		fmt.Fprintf(&sb, " [%s/s]", humanize.IBytes(uint64(rate)))
	}
	return sb.String()
}

func (b *Bar) draw() {
	line := b.String()
	pad := ""
	if n := b.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	b.width = len(line)
	b.lastDraw = b.now()
	_, _ = io.WriteString(b.out, "\r"+line+pad)
}
