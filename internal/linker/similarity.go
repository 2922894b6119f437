package linker

// Combined-score weights: embeddings dominate, topic and entity overlap
// break near-ties.
const (
	embeddingWeight = 0.6
	topicWeight     = 0.2
	entityWeight    = 0.2
)

// jaccard returns |a∩b| / |a∪b|. Two empty sets score 0, not 1: stories
// with no metadata carry no similarity signal.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// unionSets merges string sets into a fresh set.
func unionSets(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}
