package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsInvalidSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		expectErr bool
	}{
		{"daily with seconds", "0 0 6 * * *", false},
		{"descriptor", "@every 1h", false},
		{"five fields", "0 6 * * *", true},
		{"garbage", "every morning", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.spec, func(context.Context) {})
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if s.Spec() != tt.spec {
				t.Errorf("Expected spec %q, got %q", tt.spec, s.Spec())
			}
		})
	}
}

func TestNext(t *testing.T) {
	s, err := New("0 0 6 * * *", func(context.Context) {})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	next := s.Next()
	if next.IsZero() {
		t.Fatal("Expected a next activation time")
	}
	if next.Hour() != 6 || next.Minute() != 0 || next.Second() != 0 {
		t.Errorf("Expected 06:00:00, got %s", next.Format(time.TimeOnly))
	}
	if !next.After(time.Now()) || next.After(time.Now().Add(24*time.Hour)) {
		t.Errorf("Expected next run within a day, got %s", next)
	}
}

func TestReschedule(t *testing.T) {
	s, err := New("0 0 6 * * *", func(context.Context) {})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := s.Reschedule("not a schedule"); err == nil {
		t.Error("Expected error for invalid schedule")
	}
	if s.Spec() != "0 0 6 * * *" {
		t.Errorf("Expected old schedule to stay active, got %q", s.Spec())
	}

	if err := s.Reschedule("0 30 7 * * *"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Spec() != "0 30 7 * * *" {
		t.Errorf("Expected new schedule, got %q", s.Spec())
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Errorf("Expected a single cron entry, got %d", got)
	}
	if next := s.Next(); next.Hour() != 7 || next.Minute() != 30 {
		t.Errorf("Expected 07:30, got %s", next.Format(time.TimeOnly))
	}
}

func TestRunsJobAndCancelsOnStop(t *testing.T) {
	var runs int32
	cancelled := make(chan struct{}, 1)

	s, err := New("* * * * * *", func(ctx context.Context) {
		if atomic.AddInt32(&runs, 1) == 1 {
			<-ctx.Done()
			cancelled <- struct{}{}
		}
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if atomic.LoadInt32(&runs) == 0 {
		t.Fatal("Expected the job to run")
	}

	// the first run blocks, so later ticks are skipped
	time.Sleep(1200 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("Expected overlapping runs to be skipped, got %d runs", got)
	}

	done := s.Stop()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the job context to be cancelled")
	}
	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Error("Expected Stop to wait for the running job")
	}
}
