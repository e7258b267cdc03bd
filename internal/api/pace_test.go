package api

import (
	"context"
	"testing"
	"time"
)

func TestPacer_NextAllowedAt(t *testing.T) {
	base := time.Date(2024, 11, 8, 9, 0, 0, 0, time.UTC)

	t.Run("zero before first mark", func(t *testing.T) {
		p := NewPacer(time.Second)
		if got := p.NextAllowedAt(); !got.IsZero() {
			t.Errorf("NextAllowedAt = %v, want zero time before any call", got)
		}
	})

	t.Run("interval after last mark", func(t *testing.T) {
		p := NewPacer(time.Second)
		p.now = func() time.Time { return base }
		p.Mark()

		want := base.Add(time.Second)
		if got := p.NextAllowedAt(); !got.Equal(want) {
			t.Errorf("NextAllowedAt = %v, want %v", got, want)
		}
	})

	t.Run("mark advances the window", func(t *testing.T) {
		p := NewPacer(time.Second)
		p.now = func() time.Time { return base }
		p.Mark()

		later := base.Add(3 * time.Second)
		p.now = func() time.Time { return later }
		p.Mark()

		want := later.Add(time.Second)
		if got := p.NextAllowedAt(); !got.Equal(want) {
			t.Errorf("NextAllowedAt = %v, want %v", got, want)
		}
	})

	t.Run("disabled pacer", func(t *testing.T) {
		p := NewPacer(0)
		p.now = func() time.Time { return base }
		p.Mark()

		if got := p.NextAllowedAt(); !got.IsZero() {
			t.Errorf("NextAllowedAt = %v, want zero for disabled pacer", got)
		}
	})
}

func TestPacer_Wait(t *testing.T) {
	t.Run("first call does not wait", func(t *testing.T) {
		p := NewPacer(time.Second)

		start := time.Now()
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("first Wait took %v, want immediate", elapsed)
		}
	})

	t.Run("no wait once interval has passed", func(t *testing.T) {
		p := NewPacer(time.Hour)
		base := time.Date(2024, 11, 8, 9, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		p.Mark()
		p.now = func() time.Time { return base.Add(2 * time.Hour) }

		start := time.Now()
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("Wait took %v, want immediate when interval already passed", elapsed)
		}
	})

	t.Run("blocks until allowed", func(t *testing.T) {
		interval := 50 * time.Millisecond
		p := NewPacer(interval)
		p.Mark()

		start := time.Now()
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed < interval/2 {
			t.Errorf("Wait returned after %v, want close to %v", elapsed, interval)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		p := NewPacer(5 * time.Second)
		p.Mark()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := p.Wait(ctx)
		if err == nil {
			t.Fatal("expected error from cancelled Wait, got nil")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("cancelled Wait took %v, want prompt return", elapsed)
		}
	})
}

// TestPacer_SequentialSpacing checks the wall-clock guarantee: N paced
// calls take at least (N-1) intervals.
func TestPacer_SequentialSpacing(t *testing.T) {
	interval := 20 * time.Millisecond
	p := NewPacer(interval)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
		p.Mark()
	}
	elapsed := time.Since(start)

	if min := 2 * interval; elapsed < min {
		t.Errorf("elapsed = %v, want >= %v", elapsed, min)
	}
}
