package story

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/mohammad-safakhou/storyline/internal/cluster"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/models"
)

// UntitledStory is the title fallback when no cluster member has a headline.
const UntitledStory = "Untitled Story"

const maxTopEntities = 10

// Params are the knobs for one aggregation run.
type Params struct {
	MinClusterSize        int
	MinSamples            int
	LocationMinConfidence float64
	MaxLocations          int
	MaxRegions            int
	MaxCities             int
}

// Aggregator groups articles into stories by embedding density and rolls up
// entities and locations per story. One instance is safe to reuse across
// runs; each run owns its own snapshot and produces immutable output.
type Aggregator struct {
	clusterer cluster.Clusterer
	logger    *log.Logger
	metrics   *runtime.Metrics
	now       func() time.Time
}

// NewAggregator builds an aggregator. clusterer defaults to HDBSCAN, now to
// time.Now; metrics may be nil.
func NewAggregator(clusterer cluster.Clusterer, logger *log.Logger, metrics *runtime.Metrics) *Aggregator {
	if clusterer == nil {
		clusterer = &cluster.HDBSCAN{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[STORY] ", log.LstdFlags)
	}
	return &Aggregator{clusterer: clusterer, logger: logger, metrics: metrics, now: time.Now}
}

// WithClock overrides the wall clock, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// BuildStories clusters the articles and assembles one story per non-noise
// cluster. Every article must carry an embedding; callers pre-filter
// articles without one.
func (a *Aggregator) BuildStories(articles []models.Article, p Params) ([]models.Story, []models.ArticleStoryMap, []models.StoryArticles, error) {
	if len(articles) == 0 {
		return nil, nil, nil, nil
	}
	for _, art := range articles {
		if len(art.Embedding) == 0 {
			return nil, nil, nil, fmt.Errorf("article %s has no embedding", art.ID)
		}
	}

	vectors := make([][]float64, len(articles))
	for i, art := range articles {
		vectors[i] = art.Embedding
	}
	normalized := cluster.NormalizeRows(vectors)

	labels, err := a.clusterer.Cluster(normalized, p.MinClusterSize, p.MinSamples)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("clustering %d articles: %w", len(articles), err)
	}

	byLabel := make(map[int][]int)
	for i, label := range labels {
		byLabel[label] = append(byLabel[label], i)
	}
	orderedLabels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		orderedLabels = append(orderedLabels, label)
	}
	sort.Ints(orderedLabels)

	assignedAt := a.now().UTC()
	var stories []models.Story
	var maps []models.ArticleStoryMap
	var views []models.StoryArticles
	noise := 0
	for _, label := range orderedLabels {
		members := byLabel[label]
		if label == cluster.Noise {
			noise += len(members)
			for _, idx := range members {
				maps = append(maps, models.ArticleStoryMap{
					ArticleID:    articles[idx].ID,
					ClusterLabel: cluster.Noise,
					AssignedAt:   assignedAt,
				})
			}
			continue
		}

		st, view := a.buildStory(label, members, articles, normalized, p, assignedAt)
		stories = append(stories, st)
		views = append(views, view)
		storyID := st.ID
		for _, idx := range members {
			maps = append(maps, models.ArticleStoryMap{
				ArticleID:    articles[idx].ID,
				StoryID:      &storyID,
				ClusterLabel: label,
				AssignedAt:   assignedAt,
			})
		}
	}

	a.logger.Printf("built %d stories from %d articles (%d noise)", len(stories), len(articles), noise)
	if a.metrics != nil {
		a.metrics.AddStoriesBuilt(len(stories))
		a.metrics.AddNoiseArticles(noise)
	}
	return stories, maps, views, nil
}

func (a *Aggregator) buildStory(label int, members []int, articles []models.Article, normalized [][]float64, p Params, createdAt time.Time) (models.Story, models.StoryArticles) {
	memberArticles := make([]models.Article, len(members))
	memberVectors := make([][]float64, len(members))
	for i, idx := range members {
		memberArticles[i] = articles[idx]
		memberVectors[i] = normalized[idx]
	}

	ids := make([]string, len(memberArticles))
	for i, art := range memberArticles {
		ids[i] = art.ID
	}

	st := models.Story{
		ID:           StoryID(label, ids),
		Title:        a.pickTitle(memberArticles, memberVectors),
		ArticleCount: len(memberArticles),
		Sources:      distinctSources(memberArticles),
		TopEntities:  topEntities(memberArticles),
		Locations:    aggregateLocations(memberArticles, p),
		Embedding:    rawMeanEmbedding(memberArticles),
		CreatedAt:    createdAt,
	}
	st.StartPublishedAt, st.EndPublishedAt = a.timeRange(st.ID, memberArticles)

	summaries := make([]models.ArticleSummary, len(memberArticles))
	for i, art := range memberArticles {
		summaries[i] = models.ArticleSummary{
			ID:          art.ID,
			Source:      art.Source,
			Headline:    art.Headline,
			PublishedAt: art.PublishedAt,
		}
	}
	return st, models.StoryArticles{StoryID: st.ID, Articles: summaries}
}

// StoryID derives a stable story identifier from the cluster label and the
// member article ids. Reordering the ids does not change the result.
func StoryID(label int, articleIDs []string) string {
	ids := append([]string(nil), articleIDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", label, strings.Join(ids, ","))))
	return "story_" + hex.EncodeToString(sum[:])[:8]
}

// pickTitle returns the headline of the member closest to the cluster
// centroid. Members without a headline are skipped; ties keep the earlier
// member.
func (a *Aggregator) pickTitle(members []models.Article, vectors [][]float64) string {
	centroid := cluster.Normalize(cluster.Centroid(vectors))
	best := -1
	bestScore := 0.0
	for i, art := range members {
		if strings.TrimSpace(art.Headline) == "" {
			continue
		}
		score := floats.Dot(centroid, vectors[i])
		if best == -1 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best == -1 {
		return UntitledStory
	}
	return members[best].Headline
}

// topEntities sums (name, type) counts across members and keeps the ten
// highest, ties broken by first-seen order. Negative counts clamp to zero.
func topEntities(members []models.Article) []models.Entity {
	type key struct {
		name string
		typ  models.EntityType
	}
	index := make(map[key]int)
	var entities []models.Entity
	for _, art := range members {
		for _, m := range art.Entities {
			count := m.Count
			if count < 0 {
				count = 0
			}
			k := key{name: m.Name, typ: m.Type}
			if i, ok := index[k]; ok {
				entities[i].Count += count
				continue
			}
			index[k] = len(entities)
			entities = append(entities, models.Entity{Name: m.Name, Type: m.Type, Count: count})
		}
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Count > entities[j].Count })
	if len(entities) > maxTopEntities {
		entities = entities[:maxTopEntities]
	}
	return entities
}

func distinctSources(members []models.Article) []string {
	seen := make(map[string]struct{}, len(members))
	var sources []string
	for _, art := range members {
		if art.Source == "" {
			continue
		}
		if _, ok := seen[art.Source]; ok {
			continue
		}
		seen[art.Source] = struct{}{}
		sources = append(sources, art.Source)
	}
	sort.Strings(sources)
	return sources
}

// rawMeanEmbedding averages the original member embeddings without
// re-normalizing; the clustering input is normalized, the stored story
// embedding deliberately is not.
func rawMeanEmbedding(members []models.Article) []float64 {
	vectors := make([][]float64, len(members))
	for i, art := range members {
		vectors[i] = art.Embedding
	}
	return cluster.Centroid(vectors)
}

// timeRange returns the min/max published timestamps of the members. When no
// member carries one it falls back to (now, now), which is not reproducible;
// the warning keeps that visible in run logs.
func (a *Aggregator) timeRange(storyID string, members []models.Article) (time.Time, time.Time) {
	var start, end time.Time
	for _, art := range members {
		if art.PublishedAt == nil {
			continue
		}
		ts := *art.PublishedAt
		if start.IsZero() || ts.Before(start) {
			start = ts
		}
		if end.IsZero() || ts.After(end) {
			end = ts
		}
	}
	if start.IsZero() {
		now := a.now().UTC()
		a.logger.Printf("warn: story %s has no member timestamps, falling back to wall clock", storyID)
		return now, now
	}
	return start, end
}
