package main

import (
	"testing"
	"time"
)

func TestSummarizeEmpty(t *testing.T) {
	sum := summarize(nil)
	if sum.count != 0 || sum.max != 0 {
		t.Fatalf("summarize(nil) = %+v, want zero", sum)
	}
}

func TestSummarizePercentiles(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	sum := summarize(samples)
	if sum.count != 100 {
		t.Fatalf("count = %d, want 100", sum.count)
	}
	if sum.min != time.Millisecond || sum.max != 100*time.Millisecond {
		t.Fatalf("min/max = %s/%s", sum.min, sum.max)
	}
	if sum.avg != 50500*time.Microsecond {
		t.Fatalf("avg = %s, want 50.5ms", sum.avg)
	}
	if sum.p50 < 49*time.Millisecond || sum.p50 > 52*time.Millisecond {
		t.Fatalf("p50 = %s, want ~50ms", sum.p50)
	}
	if sum.p99 < 98*time.Millisecond || sum.p99 > 100*time.Millisecond {
		t.Fatalf("p99 = %s, want ~99ms", sum.p99)
	}
}

func TestPercentileBounds(t *testing.T) {
	samples := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if got := percentile(samples, 0); got != time.Millisecond {
		t.Fatalf("p0 = %s, want 1ms", got)
	}
	if got := percentile(samples, 100); got != 3*time.Millisecond {
		t.Fatalf("p100 = %s, want 3ms", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("percentile(nil) = %s, want 0", got)
	}
}
