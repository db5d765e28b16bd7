package logging_test

import (
	"testing"

	"scanlapse/internal/logging"
)

func TestProgressSamplerEmitsOncePerBucket(t *testing.T) {
	sampler := logging.NewProgressSampler(25)
	var emitted []float64
	for done := 1; done <= 8; done++ {
		if pct, ok := sampler.Observe(done, 8); ok {
			emitted = append(emitted, pct)
		}
	}
	want := []float64{25, 50, 75, 100}
	if len(emitted) != len(want) {
		t.Fatalf("unexpected emissions %v", emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emission %d: got %v want %v", i, emitted[i], want[i])
		}
	}
}

func TestProgressSamplerIgnoresEmptyTotal(t *testing.T) {
	if _, ok := logging.NewProgressSampler(0).Observe(1, 0); ok {
		t.Fatal("expected no emission for zero total")
	}
}
