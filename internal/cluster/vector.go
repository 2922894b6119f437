package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize returns an L2-normalized copy of v. Zero vectors are returned
// as-is so downstream distance math stays finite.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	norm := floats.Norm(out, 2)
	if norm == 0 || math.IsNaN(norm) {
		return out
	}
	floats.Scale(1/norm, out)
	return out
}

// NormalizeRows L2-normalizes every row into a new matrix. On unit vectors
// Euclidean and cosine distance are monotonically related, so a Euclidean
// density clusterer behaves as a cosine one over this output.
func NormalizeRows(vectors [][]float64) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		out[i] = Normalize(v)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either vector has
// zero norm or the dimensions disagree.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Centroid returns the arithmetic mean of the given vectors, nil when empty.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		floats.Add(mean, v)
	}
	floats.Scale(1/float64(len(vectors)), mean)
	return mean
}

func euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}
