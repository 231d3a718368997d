package engine

import (
	"math"
	"testing"
)

func TestSampleFair_StrictlyPositive(t *testing.T) {
	tests := []struct {
		name   string
		u1, u2 float64
	}{
		{"zero first uniform", 0, 0.3},
		{"tiny first uniform", 1e-300, 0.25},
		{"positive cosine peak", 0.001, 0},
		{"negative cosine peak", 0.001, 0.5},
		{"near-one uniforms", 0.999999, 0.999999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{vals: []float64{tt.u1, tt.u2}}
			fair := sampleFair(src, 100)
			if math.IsNaN(fair) || math.IsInf(fair, 0) {
				t.Fatalf("fair must be finite, got %v", fair)
			}
			if fair <= 0 {
				t.Errorf("fair must be strictly positive, got %v", fair)
			}
		})
	}
}

func TestSampleFair_NeutralDrawsRecoverTrueValue(t *testing.T) {
	// u1 = e^-0.5 and u2 = 0.25 make the normal term vanish, so the
	// sample collapses onto the true value.
	src := &stubSource{vals: []float64{uNeutral, uCosZero}}
	fair := sampleFair(src, 100)
	if math.Abs(fair-100) > 1e-9 {
		t.Errorf("expected fair ~100, got %v", fair)
	}
	if src.n != 2 {
		t.Errorf("sampling should consume exactly 2 draws, consumed %d", src.n)
	}
}

func TestSampleFair_ScalesWithTrueValue(t *testing.T) {
	// The multiplicative noise is identical for identical draws, so
	// doubling the true value doubles the sample.
	a := sampleFair(&stubSource{vals: []float64{0.2, 0.7}}, 100)
	b := sampleFair(&stubSource{vals: []float64{0.2, 0.7}}, 200)
	if math.Abs(b-2*a) > 1e-9*math.Abs(b) {
		t.Errorf("expected proportional samples, got %v and %v", a, b)
	}
}

func TestSampleFair_SeededDistribution(t *testing.T) {
	src := newSource(99)
	const n = 10000
	const tv = 100.0

	sum := 0.0
	below := 0
	for i := 0; i < n; i++ {
		fair := sampleFair(src, tv)
		if fair <= 0 {
			t.Fatalf("draw %d produced non-positive fair %v", i, fair)
		}
		sum += fair
		if fair < tv {
			below++
		}
	}

	// Lognormal with sigma 0.18: the median sits at the true value and
	// the mean a shade above it. Loose bounds keep this stable across
	// the seeded stream.
	if below < 4500 || below > 5500 {
		t.Errorf("expected roughly half the samples below the true value, got %d of %d", below, n)
	}
	mean := sum / n
	if mean < 95 || mean > 110 {
		t.Errorf("expected mean near the true value, got %v", mean)
	}
}

func TestLogistic(t *testing.T) {
	if got := logistic(0, 6); got != 0.5 {
		t.Errorf("zero edge must give probability 0.5, got %v", got)
	}
	if !(logistic(1, 6) > logistic(0, 6) && logistic(0, 6) > logistic(-1, 6)) {
		t.Error("logistic must be increasing in edge")
	}
	if sum := logistic(2, 6) + logistic(-2, 6); math.Abs(sum-1) > 1e-12 {
		t.Errorf("logistic must be symmetric: p(e) + p(-e) = 1, got %v", sum)
	}
	if got := logistic(1e6, 6); got < 0.999999 {
		t.Errorf("huge positive edge should saturate to 1, got %v", got)
	}
	if got := logistic(-1e6, 6); got > 1e-6 {
		t.Errorf("huge negative edge should vanish, got %v", got)
	}
}

func TestNewSource_SeedZeroStillRandomizes(t *testing.T) {
	// Seed zero falls back to the clock; the source must still produce
	// in-range uniforms.
	src := newSource(0)
	for i := 0; i < 100; i++ {
		v := src.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("uniform out of range: %v", v)
		}
	}
}
