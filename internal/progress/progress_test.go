package progress

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestTracker(step int) (*Tracker, *[]Snapshot, *time.Time) {
	clock := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	var reports []Snapshot

	tracker := NewTracker(context.Background(), "gallery_view.mp4", step)
	tracker.now = func() time.Time { return clock }
	tracker.report = func(_ context.Context, s Snapshot) { reports = append(reports, s) }
	return tracker, &reports, &clock
}

func TestTrackerReportsEachStep(t *testing.T) {
	tracker, reports, clock := newTestTracker(10)

	updates := []struct {
		after   time.Duration
		current int64
	}{
		{0, 0},
		{time.Second, 10},
		{1500 * time.Millisecond, 15},
		{5 * time.Second, 50},
		{5100 * time.Millisecond, 55},
	}
	start := *clock
	for _, u := range updates {
		*clock = start.Add(u.after)
		tracker.Update(u.current, 100)
	}

	if len(*reports) != 3 {
		t.Fatalf("Expected 3 reports, got %d: %+v", len(*reports), *reports)
	}

	second := (*reports)[1]
	if second.Percent != 10 {
		t.Errorf("Expected 10%%, got %d%%", second.Percent)
	}
	if second.Speed != 10 {
		t.Errorf("Expected 10 B/s, got %f", second.Speed)
	}
	if second.ETA != 9*time.Second {
		t.Errorf("Expected ETA 9s, got %s", second.ETA)
	}
	if (*reports)[2].Elapsed != 5*time.Second {
		t.Errorf("Expected elapsed 5s, got %s", (*reports)[2].Elapsed)
	}
}

func TestTrackerUnknownTotal(t *testing.T) {
	tracker, reports, _ := newTestTracker(10)
	tracker.Update(1024, 0)
	tracker.Update(2048, -1)

	if len(*reports) != 0 {
		t.Errorf("Expected no step reports without a total, got %d", len(*reports))
	}

	final := tracker.Finish(2048)
	if final.Percent != 100 || final.Total != 2048 {
		t.Errorf("Expected a complete final snapshot, got %+v", final)
	}
}

func TestTrackerStepFallback(t *testing.T) {
	for _, step := range []int{0, -5, 101} {
		if got := NewTracker(context.Background(), "x", step).step; got != DefaultStep {
			t.Errorf("step %d: expected %d, got %d", step, DefaultStep, got)
		}
	}
}

func TestSnapshotString(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		contains []string
		excludes string
	}{
		{
			name:     "known total",
			snapshot: Snapshot{Label: "upload", Current: 40_000_000, Total: 100_000_000, Percent: 40, Speed: 2_000_000, ETA: 30 * time.Second},
			contains: []string{"upload: 40%", "40 MB / 100 MB", "2.0 MB/s", "ETA 30s"},
		},
		{
			name:     "no eta",
			snapshot: Snapshot{Label: "upload", Current: 10, Total: 10, Percent: 100},
			contains: []string{"100%"},
			excludes: "ETA",
		},
		{
			name:     "unknown total",
			snapshot: Snapshot{Label: "download", Current: 5_000_000, Speed: 1_000_000},
			contains: []string{"download: 5.0 MB", "1.0 MB/s"},
			excludes: "%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := tt.snapshot.String()
			for _, want := range tt.contains {
				if !strings.Contains(line, want) {
					t.Errorf("Expected %q in %q", want, line)
				}
			}
			if tt.excludes != "" && strings.Contains(line, tt.excludes) {
				t.Errorf("Did not expect %q in %q", tt.excludes, line)
			}
		})
	}
}
