// Package progress implements the step/count progress meter. The rate shown
// on each update is computed from the delta since the previous update, not
// a lifetime average.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Sink receives progress updates. Two concrete sinks are provided: a TTY
// one that redraws in place, and a summary one that prints once at finish.
type Sink interface {
	Start(label string, total *int)
	Update(now int, status string)
	Finish(now *int)
}

// Meter drives a Sink in either "step" (known total) or "count" (unknown
// total) mode, tracking t0/tprev/iprev exactly as the original does.
type Meter struct {
	sink  Sink
	total *int
	t0    time.Time
	tprev time.Time
	iprev int
}

// NewStep starts a Meter with a known total (e.g. a day count).
func NewStep(sink Sink, label string, total int) *Meter {
	now := time.Now()
	sink.Start(label, &total)
	return &Meter{sink: sink, total: &total, t0: now, tprev: now}
}

// NewCount starts a Meter with an unknown total (e.g. rows consumed from a
// stream of unknown length).
func NewCount(sink Sink, label string) *Meter {
	now := time.Now()
	sink.Start(label, nil)
	return &Meter{sink: sink, t0: now, tprev: now}
}

// Update reports progress at absolute position now, computing the
// instantaneous rate since the previous update.
func (m *Meter) Update(now int) {
	t := time.Now()
	dt := t.Sub(m.tprev)
	var rate float64
	if dt > 0 {
		rate = float64(now-m.iprev) / dt.Seconds()
	}
	m.sink.Update(now, formatRate(rate))
	m.tprev = t
	m.iprev = now
}

// Finish passes the final position (nil for "count" mode where the total
// was never known) to the sink; SummarySink prints the overall average rate
// since Start at this point.
func (m *Meter) Finish(now *int) {
	m.sink.Finish(now)
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f/s", rate)
}

// TTYSink redraws an inline progress bar with a right-aligned rate column,
// intended for an interactive terminal.
type TTYSink struct {
	w     io.Writer
	label string
	total *int
	tick  int
}

// NewTTYSink returns a Sink that writes carriage-return-redrawn lines to w.
func NewTTYSink(w io.Writer) *TTYSink { return &TTYSink{w: w} }

var tickFrames = []rune{'|', '/', '-', '\\'}

func (s *TTYSink) Start(label string, total *int) {
	s.label = label
	s.total = total
	if total != nil {
		fmt.Fprintf(s.w, "%s: 0/%d\n", label, *total)
	} else {
		fmt.Fprintf(s.w, "%s: 0\n", label)
	}
}

func (s *TTYSink) Update(now int, status string) {
	s.tick = (s.tick + 1) % len(tickFrames)
	frame := tickFrames[s.tick]
	if s.total != nil {
		fmt.Fprintf(s.w, "\r%s %c %d/%d %12s", s.label, frame, now, *s.total, status)
	} else {
		fmt.Fprintf(s.w, "\r%s %c %d %12s", s.label, frame, now, status)
	}
}

func (s *TTYSink) Finish(now *int) {
	if now != nil {
		fmt.Fprintf(s.w, "\r%s done: %d\n", s.label, *now)
	} else {
		fmt.Fprintf(s.w, "\r%s done\n", s.label)
	}
}

// SummarySink records only the last update and prints a single line at
// Finish, intended for non-TTY (redirected/piped) output.
type SummarySink struct {
	w     io.Writer
	label string
	last  int
	t0    time.Time
}

// NewSummarySink returns a Sink suitable for non-interactive output.
func NewSummarySink(w io.Writer) *SummarySink { return &SummarySink{w: w} }

func (s *SummarySink) Start(label string, total *int) {
	s.label = label
	s.t0 = time.Now()
}

func (s *SummarySink) Update(now int, status string) {
	s.last = now
}

func (s *SummarySink) Finish(now *int) {
	n := s.last
	if now != nil {
		n = *now
	}
	elapsed := time.Since(s.t0)
	rate := float64(n) / max(elapsed.Seconds(), 0.001)
	fmt.Fprintf(s.w, "%s: %d in %s (%.1f/s)\n", s.label, n, strings.TrimSpace(elapsed.Round(time.Millisecond).String()), rate)
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
