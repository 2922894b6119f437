package linker

import (
	"context"
	"math"
	"testing"

	"github.com/mohammad-safakhou/storyline/models"
)

func set(items ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

type fakeSource struct {
	metadata map[string]models.StoryMetadata
	onDate   map[string][]models.StoryMetadata
	digests  map[string]models.StoryDigest
}

func (f *fakeSource) StoryMetadata(ctx context.Context, storyID, embeddingModel string) (models.StoryMetadata, error) {
	return f.metadata[storyID], nil
}

func (f *fakeSource) StoriesOnDate(ctx context.Context, date, embeddingModel string) ([]models.StoryMetadata, error) {
	return f.onDate[date], nil
}

func (f *fakeSource) StoryDigests(ctx context.Context, ids []string) ([]models.StoryDigest, error) {
	out := make([]models.StoryDigest, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.digests[id])
	}
	return out, nil
}

type fakeOracle struct {
	pairs []models.GroupPair
}

func (f *fakeOracle) GroupStories(ctx context.Context, a, b []models.StoryDigest) ([]models.GroupPair, error) {
	return f.pairs, nil
}

func TestJaccard(t *testing.T) {
	if got := jaccard(nil, nil); got != 0 {
		t.Fatalf("jaccard of two empty sets must be 0, got %f", got)
	}
	if got := jaccard(set("a", "b"), set("a", "b")); got != 1 {
		t.Fatalf("identical sets must score 1, got %f", got)
	}
	if got := jaccard(set("a"), set("b")); got != 0 {
		t.Fatalf("disjoint sets must score 0, got %f", got)
	}
	if got := jaccard(set("a", "b", "c"), set("b", "c", "d")); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %f", got)
	}
}

func TestGetSimilarStoriesPerfectMatch(t *testing.T) {
	src := &fakeSource{
		metadata: map[string]models.StoryMetadata{
			"story_today": {
				StoryID:   "story_today",
				Topics:    set("politics"),
				Embedding: []float64{1, 0},
			},
		},
		onDate: map[string][]models.StoryMetadata{
			"2024-02-29": {
				{StoryID: "story_prev", Topics: set("politics"), Embedding: []float64{1, 0}},
			},
		},
	}
	l := New(src, nil, nil, nil)

	got, err := l.GetSimilarStories(context.Background(), "story_today", "2024-02-29", 5, "embed-v1")
	if err != nil {
		t.Fatalf("GetSimilarStories: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %v", got)
	}
	c := got[0]
	if math.Abs(c.EmbeddingSimilarity-1) > 1e-9 {
		t.Fatalf("embedding similarity: got %f", c.EmbeddingSimilarity)
	}
	if math.Abs(c.TopicSimilarity-1) > 1e-9 {
		t.Fatalf("topic similarity: got %f", c.TopicSimilarity)
	}
	// entity sets are both empty, so that term contributes nothing
	if math.Abs(c.SimilarityScore-0.8) > 1e-9 {
		t.Fatalf("combined score: got %f", c.SimilarityScore)
	}
}

func TestGetSimilarStoriesRankingAndLimit(t *testing.T) {
	src := &fakeSource{
		metadata: map[string]models.StoryMetadata{
			"story_in": {StoryID: "story_in", Embedding: []float64{1, 0}},
		},
		onDate: map[string][]models.StoryMetadata{
			"2024-02-29": {
				{StoryID: "story_far", Embedding: []float64{0, 1}},
				{StoryID: "story_near", Embedding: []float64{1, 0.1}},
				{StoryID: "story_mid", Embedding: []float64{1, 1}},
			},
		},
	}
	l := New(src, nil, nil, nil)

	got, err := l.GetSimilarStories(context.Background(), "story_in", "2024-02-29", 2, "embed-v1")
	if err != nil {
		t.Fatalf("GetSimilarStories: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected top 2, got %v", got)
	}
	if got[0].StoryID != "story_near" || got[1].StoryID != "story_mid" {
		t.Fatalf("wrong ranking: %v", got)
	}
}

func TestGetSimilarStoriesExcludesSelf(t *testing.T) {
	src := &fakeSource{
		metadata: map[string]models.StoryMetadata{
			"story_x": {StoryID: "story_x", Embedding: []float64{1, 0}},
		},
		onDate: map[string][]models.StoryMetadata{
			"2024-02-29": {
				{StoryID: "story_x", Embedding: []float64{1, 0}},
			},
		},
	}
	l := New(src, nil, nil, nil)

	got, err := l.GetSimilarStories(context.Background(), "story_x", "2024-02-29", 5, "embed-v1")
	if err != nil {
		t.Fatalf("GetSimilarStories: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("input story must be excluded, got %v", got)
	}
}

func TestGetSimilarStoriesUndefinedEmbedding(t *testing.T) {
	src := &fakeSource{
		metadata: map[string]models.StoryMetadata{
			"story_a": {StoryID: "story_a", Topics: set("sports")},
		},
		onDate: map[string][]models.StoryMetadata{
			"2024-02-29": {
				{StoryID: "story_b", Topics: set("sports"), Embedding: []float64{1, 0}},
			},
		},
	}
	l := New(src, nil, nil, nil)

	got, err := l.GetSimilarStories(context.Background(), "story_a", "2024-02-29", 5, "embed-v1")
	if err != nil {
		t.Fatalf("GetSimilarStories: %v", err)
	}
	if got[0].EmbeddingSimilarity != 0 {
		t.Fatalf("undefined mean embedding must score 0, got %f", got[0].EmbeddingSimilarity)
	}
	if math.Abs(got[0].SimilarityScore-0.2) > 1e-9 {
		t.Fatalf("combined score: got %f", got[0].SimilarityScore)
	}
}

func TestLinkStoriesMapsPairs(t *testing.T) {
	src := &fakeSource{
		metadata: map[string]models.StoryMetadata{
			"story_new": {StoryID: "story_new", Embedding: []float64{1, 0}},
		},
		onDate: map[string][]models.StoryMetadata{
			"2024-02-29": {
				{StoryID: "story_old", Embedding: []float64{1, 0}},
			},
		},
		digests: map[string]models.StoryDigest{
			"story_old": {ID: "story_old", Title: "Old"},
		},
	}
	oracle := &fakeOracle{pairs: []models.GroupPair{
		{GroupAIndex: 0, GroupBIndex: 0},
		{GroupAIndex: 7, GroupBIndex: 0},  // out of range, skipped
		{GroupAIndex: 0, GroupBIndex: -1}, // out of range, skipped
	}}
	l := New(src, oracle, nil, nil)

	links, err := l.LinkStories(context.Background(), []models.StoryDigest{{ID: "story_new", Title: "New"}}, "2024-02-29", 3, "embed-v1")
	if err != nil {
		t.Fatalf("LinkStories: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected one link, got %v", links)
	}
	if links[0].StoryID1 != "story_old" || links[0].StoryID2 != "story_new" {
		t.Fatalf("link must be directed older -> newer: %+v", links[0])
	}
}

func TestLinkStoriesNoCandidates(t *testing.T) {
	src := &fakeSource{
		metadata: map[string]models.StoryMetadata{
			"story_new": {StoryID: "story_new", Embedding: []float64{1, 0}},
		},
		onDate: map[string][]models.StoryMetadata{},
	}
	l := New(src, &fakeOracle{}, nil, nil)

	links, err := l.LinkStories(context.Background(), []models.StoryDigest{{ID: "story_new"}}, "2024-02-29", 3, "embed-v1")
	if err != nil {
		t.Fatalf("LinkStories: %v", err)
	}
	if links != nil {
		t.Fatalf("expected no links, got %v", links)
	}
}

func TestParseGroupPairsFenced(t *testing.T) {
	pairs, err := parseGroupPairs("```json\n[{\"group_a_index\":1,\"group_b_index\":2}]\n```")
	if err != nil {
		t.Fatalf("parseGroupPairs: %v", err)
	}
	if len(pairs) != 1 || pairs[0].GroupAIndex != 1 || pairs[0].GroupBIndex != 2 {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
}
