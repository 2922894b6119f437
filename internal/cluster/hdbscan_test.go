package cluster

import (
	"math"
	"testing"
)

// unit returns the unit vector at the given angle in radians.
func unit(angle float64) []float64 {
	return []float64{math.Cos(angle), math.Sin(angle)}
}

func twoGroupsAndOutlier() [][]float64 {
	var vectors [][]float64
	// tight group around angle 0
	for _, jitter := range []float64{-0.04, -0.02, 0, 0.02, 0.04} {
		vectors = append(vectors, unit(jitter))
	}
	// tight group around angle pi/2
	for _, jitter := range []float64{-0.04, -0.02, 0, 0.02, 0.04} {
		vectors = append(vectors, unit(math.Pi/2+jitter))
	}
	// lone point far from both groups
	vectors = append(vectors, unit(5*math.Pi/4))
	return vectors
}

func TestHDBSCANSeparatesDenseGroups(t *testing.T) {
	h := &HDBSCAN{}
	labels, err := h.Cluster(twoGroupsAndOutlier(), 3, 2)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(labels) != 11 {
		t.Fatalf("expected 11 labels, got %d", len(labels))
	}
	first := labels[0]
	if first == Noise {
		t.Fatalf("first group labelled noise: %v", labels)
	}
	for i := 1; i < 5; i++ {
		if labels[i] != first {
			t.Fatalf("first group split: %v", labels)
		}
	}
	second := labels[5]
	if second == Noise || second == first {
		t.Fatalf("second group not a distinct cluster: %v", labels)
	}
	for i := 6; i < 10; i++ {
		if labels[i] != second {
			t.Fatalf("second group split: %v", labels)
		}
	}
	if labels[10] != Noise {
		t.Fatalf("outlier should be noise, got %d", labels[10])
	}
}

func TestHDBSCANDeterministic(t *testing.T) {
	h := &HDBSCAN{}
	vectors := twoGroupsAndOutlier()
	a, err := h.Cluster(vectors, 3, 2)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	b, err := h.Cluster(vectors, 3, 2)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("labels differ between identical runs: %v vs %v", a, b)
		}
	}
}

func TestHDBSCANSmallInputs(t *testing.T) {
	h := &HDBSCAN{}

	labels, err := h.Cluster(nil, 3, 2)
	if err != nil {
		t.Fatalf("Cluster(empty): %v", err)
	}
	if len(labels) != 0 {
		t.Fatalf("expected no labels, got %v", labels)
	}

	labels, err = h.Cluster([][]float64{{1, 0}, {0, 1}}, 3, 2)
	if err != nil {
		t.Fatalf("Cluster(two points): %v", err)
	}
	for _, l := range labels {
		if l != Noise {
			t.Fatalf("fewer points than min cluster size must all be noise: %v", labels)
		}
	}
}

func TestHDBSCANDimensionMismatch(t *testing.T) {
	h := &HDBSCAN{}
	if _, err := h.Cluster([][]float64{{1, 0}, {0, 1, 0}}, 2, 2); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}
