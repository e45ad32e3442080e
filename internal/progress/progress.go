// Package progress reports transfer progress as log lines at fixed
// percentage steps, with speed and ETA from a short window of samples.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// DefaultStep is the percentage between two reports
const DefaultStep = 10

const maxSamples = 10

// Snapshot is the state of a transfer at the moment it was reported
type Snapshot struct {
	Label   string
	Current int64
	Total   int64
	Percent int
	Speed   float64 // bytes per second
	ETA     time.Duration
	Elapsed time.Duration
}

// String renders the snapshot as a single log-friendly line
func (s Snapshot) String() string {
	if s.Total <= 0 {
		return fmt.Sprintf("%s: %s at %s/s", s.Label, humanize.Bytes(uint64(s.Current)), humanize.Bytes(uint64(s.Speed)))
	}

	line := fmt.Sprintf("%s: %d%% (%s / %s) at %s/s",
		s.Label, s.Percent,
		humanize.Bytes(uint64(s.Current)), humanize.Bytes(uint64(s.Total)),
		humanize.Bytes(uint64(s.Speed)))
	if s.ETA > 0 {
		line += fmt.Sprintf(", ETA %s", s.ETA.Round(time.Second))
	}
	return line
}

type sample struct {
	at    time.Time
	value int64
}

// Tracker turns a stream of byte counts into periodic reports. It is safe
// for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	ctx      context.Context
	label    string
	step     int
	started  time.Time
	samples  []sample
	reported int
	now      func() time.Time
	report   func(context.Context, Snapshot)
}

// NewTracker creates a tracker that logs every step percent. A step outside
// 1-100 falls back to DefaultStep.
func NewTracker(ctx context.Context, label string, step int) *Tracker {
	if step <= 0 || step > 100 {
		step = DefaultStep
	}
	return &Tracker{
		ctx:      ctx,
		label:    label,
		step:     step,
		reported: -1,
		now:      time.Now,
		report:   logReport,
	}
}

func logReport(ctx context.Context, s Snapshot) {
	logging.DebugWithContext(ctx, "%s", s)
}

// Update records that current of total bytes have been transferred and
// reports when a new step is reached. The signature matches
// download.Request.Progress.
func (t *Tracker) Update(current, total int64) {
	t.mu.Lock()
	now := t.now()
	if t.started.IsZero() {
		t.started = now
		t.samples = append(t.samples, sample{at: now, value: current})
	}
	t.addSample(now, current)

	if total <= 0 {
		t.mu.Unlock()
		return
	}

	percent := int(current * 100 / total)
	bucket := percent / t.step
	if bucket == t.reported {
		t.mu.Unlock()
		return
	}
	t.reported = bucket
	snapshot := t.snapshot(now, current, total, percent)
	t.mu.Unlock()

	t.report(t.ctx, snapshot)
}

// Finish reports the final state once, regardless of the step
func (t *Tracker) Finish(current int64) Snapshot {
	t.mu.Lock()
	now := t.now()
	t.addSample(now, current)
	snapshot := t.snapshot(now, current, current, 100)
	t.mu.Unlock()

	t.report(t.ctx, snapshot)
	return snapshot
}

func (t *Tracker) addSample(at time.Time, value int64) {
	t.samples = append(t.samples, sample{at: at, value: value})
	if len(t.samples) > maxSamples {
		t.samples = t.samples[1:]
	}
}

func (t *Tracker) snapshot(now time.Time, current, total int64, percent int) Snapshot {
	speed := t.speed()
	return Snapshot{
		Label:   t.label,
		Current: current,
		Total:   total,
		Percent: percent,
		Speed:   speed,
		ETA:     eta(current, total, speed),
		Elapsed: now.Sub(t.started),
	}
}

// speed uses the oldest and newest sample in the window
func (t *Tracker) speed() float64 {
	if len(t.samples) < 2 {
		return 0
	}
	first := t.samples[0]
	last := t.samples[len(t.samples)-1]

	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.value-first.value) / elapsed
}

func eta(current, total int64, speed float64) time.Duration {
	if total <= 0 || current >= total || speed <= 0 {
		return 0
	}
	seconds := float64(total-current) / speed
	return time.Duration(seconds * float64(time.Second))
}
