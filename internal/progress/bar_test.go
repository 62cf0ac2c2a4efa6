package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBar(out *bytes.Buffer, label string, total int64) (*Bar, *fakeClock) {
	clock := &fakeClock{t: time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)}
	b := New(out, label, total)
	b.now = clock.now
	b.started = clock.t
	b.lastDraw = clock.t
	return b, clock
}

func lastFrame(out string) string {
	frames := strings.Split(strings.TrimRight(out, "\n"), "\r")
	return strings.TrimSpace(frames[len(frames)-1])
}

func TestBarReachesTotal(t *testing.T) {
	var out bytes.Buffer
	bar, clock := newTestBar(&out, "S5P_NO2_20230901.zip", 2048)

	clock.t = clock.t.Add(time.Second)
	bar.Add(1024)
	clock.t = clock.t.Add(time.Second)
	bar.Add(1024)
	bar.Finish()

	if bar.Current() != 2048 || bar.Total() != 2048 {
		t.Fatalf("Current()=%d Total()=%d, want 2048/2048", bar.Current(), bar.Total())
	}
	frame := lastFrame(out.String())
	if !strings.HasPrefix(frame, "S5P_NO2_20230901.zip: 100% 2.0 KiB / 2.0 KiB") {
		t.Fatalf("final frame=%q", frame)
	}
	if !strings.Contains(frame, "[1.0 KiB/s]") {
		t.Fatalf("final frame=%q, want rate 1.0 KiB/s", frame)
	}
	if !strings.HasSuffix(out.String(), "\n") {
		t.Fatalf("Finish() must end the line")
	}
}

func TestBarThrottlesRedraws(t *testing.T) {
	var out bytes.Buffer
	bar, clock := newTestBar(&out, "x", 10_000)
	before := strings.Count(out.String(), "\r")

	for i := 0; i < 50; i++ {
		bar.Add(100)
	}
	if got := strings.Count(out.String(), "\r"); got != before {
		t.Fatalf("redraws=%d, want none within the interval", got-before)
	}

	clock.t = clock.t.Add(DefaultInterval)
	bar.Add(100)
	if got := strings.Count(out.String(), "\r"); got != before+1 {
		t.Fatalf("redraws=%d, want 1 after the interval", got-before)
	}
}

func TestBarUnknownTotal(t *testing.T) {
	var out bytes.Buffer
	bar, _ := newTestBar(&out, "x.zip", 0)
	_, _ = bar.Write(make([]byte, 3*1024*1024))
	bar.Finish()

	frame := lastFrame(out.String())
	if !strings.HasPrefix(frame, "x.zip: 3.0 MiB") || strings.Contains(frame, "%") {
		t.Fatalf("final frame=%q", frame)
	}
}

func TestBarIgnoresAddAfterFinish(t *testing.T) {
	var out bytes.Buffer
	bar, _ := newTestBar(&out, "x", 10)
	bar.Add(10)
	bar.Finish()
	bar.Add(5)
	bar.Finish()
	if bar.Current() != 10 {
		t.Fatalf("Current()=%d, want 10", bar.Current())
	}
	if strings.Count(out.String(), "\n") != 1 {
		t.Fatalf("Finish() wrote more than one newline")
	}
}
