package metrics

import (
	"testing"
	"time"

	"wifirtt/internal/model"
)

func TestReduce_TrimsTailsFromAverageOnly(t *testing.T) {
	t.Parallel()

	s := Reduce([]float64{10, 12, 11, 50, 9})
	if s == nil {
		t.Fatal("expected summary")
	}
	if s.AvgMs != 11 {
		t.Fatalf("avg=%.2f", s.AvgMs)
	}
	if s.MinMs != 9 || s.MaxMs != 50 {
		t.Fatalf("min/max=%.2f/%.2f", s.MinMs, s.MaxMs)
	}
	if s.Samples != 5 {
		t.Fatalf("samples=%d", s.Samples)
	}
	want := []float64{9, 10, 11, 12, 50}
	for i, v := range want {
		if s.AllMs[i] != v {
			t.Fatalf("all=%v", s.AllMs)
		}
	}
	if s.JitterMs != nil {
		t.Fatalf("jitter=%v", *s.JitterMs)
	}
}

func TestReduce_Empty(t *testing.T) {
	t.Parallel()

	if s := Reduce(nil); s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
	if s := Reduce([]float64{}); s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
}

func TestReduce_FewSamplesNotTrimmed(t *testing.T) {
	t.Parallel()

	s := Reduce([]float64{3, 1, 8})
	if s.AvgMs != 4 {
		t.Fatalf("avg=%.2f", s.AvgMs)
	}
	if s.MinMs != 1 || s.MaxMs != 8 || s.Samples != 3 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestReduce_DoesNotReorderInput(t *testing.T) {
	t.Parallel()

	in := []float64{5, 1, 4, 2}
	_ = Reduce(in)
	if in[0] != 5 || in[1] != 1 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestTrimmed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   []float64
		want []float64
	}{
		{in: []float64{1}, want: []float64{1}},
		{in: []float64{1, 2, 3}, want: []float64{1, 2, 3}},
		{in: []float64{1, 2, 3, 4}, want: []float64{2, 3}},
		{in: []float64{1, 1, 1, 9, 9}, want: []float64{1, 1, 9}},
	}
	for _, tc := range cases {
		got := Trimmed(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("Trimmed(%v)=%v", tc.in, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("Trimmed(%v)=%v", tc.in, got)
			}
		}
	}
}

func TestReduceSamples_ConvertsToMillis(t *testing.T) {
	t.Parallel()

	s := ReduceSamples([]model.LatencySample{
		{Technique: model.TechniqueTCP, Duration: 1500 * time.Microsecond},
		{Technique: model.TechniqueTCP, Duration: 2500 * time.Microsecond},
	})
	if s.AvgMs != 2 || s.MinMs != 1.5 || s.MaxMs != 2.5 {
		t.Fatalf("summary=%+v", s)
	}
}
