package story

import (
	"testing"
	"time"

	"github.com/mohammad-safakhou/storyline/models"
)

// fixedClusterer returns canned labels regardless of input.
type fixedClusterer struct {
	labels []int
}

func (f *fixedClusterer) Cluster(vectors [][]float64, minClusterSize, minSamples int) ([]int, error) {
	return f.labels, nil
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func franceRow(count, parisCount int) models.LocationRow {
	return models.LocationRow{
		Kind:        models.LocationRowCountry,
		Name:        "France",
		CountryCode: "FR",
		Count:       count,
		InHeadline:  true,
		SubEntities: []models.LocationSub{{Name: "Paris", Count: parisCount, InHeadline: true}},
	}
}

func TestStoryIDOrderInvariant(t *testing.T) {
	a := StoryID(0, []string{"a1", "a2"})
	b := StoryID(0, []string{"a2", "a1"})
	if a != b {
		t.Fatalf("story id must not depend on article order: %s vs %s", a, b)
	}
	if len(a) != len("story_")+8 {
		t.Fatalf("unexpected story id format: %s", a)
	}
	if a == StoryID(1, []string{"a1", "a2"}) {
		t.Fatal("different labels must yield different ids")
	}
}

func TestBuildStoriesEndToEnd(t *testing.T) {
	articles := []models.Article{
		{
			ID:          "a1",
			Source:      "reuters",
			Headline:    "Protests in Paris",
			PublishedAt: ts("2024-03-01T10:00:00Z"),
			Embedding:   []float64{1.0, 0.0},
			Entities: []models.EntityMention{
				{ArticleID: "a1", Type: models.EntityTypeGPE, Name: "FRANCE", Count: 3},
			},
			Locations: []models.LocationRow{franceRow(3, 2)},
		},
		{
			ID:          "a2",
			Source:      "ap",
			Headline:    "Paris unrest continues",
			PublishedAt: ts("2024-03-01T15:00:00Z"),
			Embedding:   []float64{0.8, 0.2},
			Entities: []models.EntityMention{
				{ArticleID: "a2", Type: models.EntityTypeGPE, Name: "FRANCE", Count: 1},
			},
			Locations: []models.LocationRow{franceRow(1, 1)},
		},
	}

	agg := NewAggregator(&fixedClusterer{labels: []int{0, 0}}, nil, nil)
	stories, maps, views, err := agg.BuildStories(articles, Params{
		MinClusterSize:        2,
		MinSamples:            1,
		LocationMinConfidence: 0.1,
		MaxLocations:          5,
		MaxRegions:            3,
		MaxCities:             3,
	})
	if err != nil {
		t.Fatalf("BuildStories: %v", err)
	}
	if len(stories) != 1 {
		t.Fatalf("expected one story, got %d", len(stories))
	}
	st := stories[0]
	if st.ArticleCount != 2 {
		t.Fatalf("article count: got %d", st.ArticleCount)
	}
	if len(st.Locations) != 1 {
		t.Fatalf("expected one location, got %v", st.Locations)
	}
	loc := st.Locations[0]
	if loc.CountryCode != "FR" {
		t.Fatalf("country code: got %q", loc.CountryCode)
	}
	if loc.MentionCount < 4 {
		t.Fatalf("mention count: got %d", loc.MentionCount)
	}
	if loc.Confidence < 0 || loc.Confidence > 1 {
		t.Fatalf("confidence out of bounds: %f", loc.Confidence)
	}
	if len(loc.SubEntities) != 1 || loc.SubEntities[0].Name != "Paris" {
		t.Fatalf("sub entities: got %v", loc.SubEntities)
	}
	if loc.SubEntities[0].MentionCount < 3 {
		t.Fatalf("paris mention count: got %d", loc.SubEntities[0].MentionCount)
	}
	if r := loc.SubEntities[0].InHeadlineRatio; r < 0 || r > 1 {
		t.Fatalf("in-headline ratio out of bounds: %f", r)
	}

	if len(st.Sources) != 2 || st.Sources[0] != "ap" || st.Sources[1] != "reuters" {
		t.Fatalf("sources must be sorted distinct: %v", st.Sources)
	}
	if st.StartPublishedAt.After(st.EndPublishedAt) {
		t.Fatalf("time range inverted: %v..%v", st.StartPublishedAt, st.EndPublishedAt)
	}
	// story embedding is the unnormalized mean
	if st.Embedding[0] != 0.9 || st.Embedding[1] != 0.1 {
		t.Fatalf("story embedding must be the raw mean: %v", st.Embedding)
	}

	if len(maps) != 2 {
		t.Fatalf("expected one map row per article, got %d", len(maps))
	}
	for _, row := range maps {
		if row.StoryID == nil || *row.StoryID != st.ID {
			t.Fatalf("map row must point at the story: %+v", row)
		}
	}
	if len(views) != 1 || len(views[0].Articles) != 2 {
		t.Fatalf("unexpected story articles view: %v", views)
	}
}

func TestBuildStoriesNoiseInvariant(t *testing.T) {
	articles := []models.Article{
		{ID: "a1", Embedding: []float64{1, 0}},
		{ID: "a2", Embedding: []float64{0, 1}},
		{ID: "a3", Embedding: []float64{1, 0.1}},
	}
	agg := NewAggregator(&fixedClusterer{labels: []int{0, -1, 0}}, nil, nil)
	stories, maps, _, err := agg.BuildStories(articles, Params{MinClusterSize: 2})
	if err != nil {
		t.Fatalf("BuildStories: %v", err)
	}
	if len(stories) != 1 {
		t.Fatalf("expected one story, got %d", len(stories))
	}
	for _, row := range maps {
		if (row.ClusterLabel == models.NoiseLabel) != (row.StoryID == nil) {
			t.Fatalf("noise invariant violated: %+v", row)
		}
	}
}

func TestBuildStoriesRequiresEmbeddings(t *testing.T) {
	agg := NewAggregator(&fixedClusterer{labels: []int{0}}, nil, nil)
	_, _, _, err := agg.BuildStories([]models.Article{{ID: "a1"}}, Params{MinClusterSize: 2})
	if err == nil {
		t.Fatal("missing embedding must fail fast")
	}
}

func TestBuildStoriesEmptyInput(t *testing.T) {
	agg := NewAggregator(&fixedClusterer{}, nil, nil)
	stories, maps, views, err := agg.BuildStories(nil, Params{MinClusterSize: 2})
	if err != nil || stories != nil || maps != nil || views != nil {
		t.Fatalf("empty input must yield empty output, got %v %v %v %v", stories, maps, views, err)
	}
}

func TestTitlePicksCentroidNeighbour(t *testing.T) {
	articles := []models.Article{
		{ID: "a1", Headline: "close to centre", Embedding: []float64{1, 0.1}},
		{ID: "a2", Headline: "far from centre", Embedding: []float64{0.4, 1}},
		{ID: "a3", Headline: "closest to centre", Embedding: []float64{1, 0.3}},
	}
	agg := NewAggregator(&fixedClusterer{labels: []int{0, 0, 0}}, nil, nil)
	stories, _, _, err := agg.BuildStories(articles, Params{MinClusterSize: 2})
	if err != nil {
		t.Fatalf("BuildStories: %v", err)
	}
	if stories[0].Title == "far from centre" {
		t.Fatalf("title must come from a member near the centroid, got %q", stories[0].Title)
	}
}

func TestTitleFallback(t *testing.T) {
	articles := []models.Article{
		{ID: "a1", Embedding: []float64{1, 0}},
		{ID: "a2", Embedding: []float64{0.9, 0.1}},
	}
	agg := NewAggregator(&fixedClusterer{labels: []int{0, 0}}, nil, nil)
	stories, _, _, err := agg.BuildStories(articles, Params{MinClusterSize: 2})
	if err != nil {
		t.Fatalf("BuildStories: %v", err)
	}
	if stories[0].Title != UntitledStory {
		t.Fatalf("expected fallback title, got %q", stories[0].Title)
	}
}

func TestTimeRangeFallbackUsesClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	articles := []models.Article{
		{ID: "a1", Embedding: []float64{1, 0}},
		{ID: "a2", Embedding: []float64{0.9, 0.1}},
	}
	agg := NewAggregator(&fixedClusterer{labels: []int{0, 0}}, nil, nil).
		WithClock(func() time.Time { return fixed })
	stories, _, _, err := agg.BuildStories(articles, Params{MinClusterSize: 2})
	if err != nil {
		t.Fatalf("BuildStories: %v", err)
	}
	if !stories[0].StartPublishedAt.Equal(fixed) || !stories[0].EndPublishedAt.Equal(fixed) {
		t.Fatalf("expected clock fallback, got %v..%v", stories[0].StartPublishedAt, stories[0].EndPublishedAt)
	}
}

func TestTopEntitiesRanking(t *testing.T) {
	articles := []models.Article{
		{
			ID:        "a1",
			Embedding: []float64{1, 0},
			Entities: []models.EntityMention{
				{Name: "ALPHA", Type: models.EntityTypeOrg, Count: 2},
				{Name: "BETA", Type: models.EntityTypeOrg, Count: 5},
				{Name: "GAMMA", Type: models.EntityTypeOrg, Count: -3},
			},
		},
		{
			ID:        "a2",
			Embedding: []float64{0.9, 0.1},
			Entities: []models.EntityMention{
				{Name: "ALPHA", Type: models.EntityTypeOrg, Count: 4},
			},
		},
	}
	agg := NewAggregator(&fixedClusterer{labels: []int{0, 0}}, nil, nil)
	stories, _, _, err := agg.BuildStories(articles, Params{MinClusterSize: 2})
	if err != nil {
		t.Fatalf("BuildStories: %v", err)
	}
	top := stories[0].TopEntities
	if len(top) != 3 {
		t.Fatalf("expected 3 entities, got %v", top)
	}
	if top[0].Name != "ALPHA" || top[0].Count != 6 {
		t.Fatalf("expected ALPHA summed to 6 first, got %+v", top[0])
	}
	if top[2].Name != "GAMMA" || top[2].Count != 0 {
		t.Fatalf("negative counts must clamp to zero, got %+v", top[2])
	}
}
