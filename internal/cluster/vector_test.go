package cluster

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	if math.Abs(v[0]-0.6) > 1e-9 || math.Abs(v[1]-0.8) > 1e-9 {
		t.Fatalf("unexpected normalized vector: %v", v)
	}

	zero := Normalize([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector must stay zero: %v", zero)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := []float64{3, 4}
	_ = Normalize(in)
	if in[0] != 3 || in[1] != 4 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %f", got)
	}
	if got := Cosine([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Fatalf("zero vector: got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{1, 0, 0}); got != 0 {
		t.Fatalf("dimension mismatch: got %f", got)
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([][]float64{{1, 0}, {0, 1}})
	if math.Abs(c[0]-0.5) > 1e-9 || math.Abs(c[1]-0.5) > 1e-9 {
		t.Fatalf("unexpected centroid: %v", c)
	}
	if Centroid(nil) != nil {
		t.Fatal("empty input must yield nil centroid")
	}
}
