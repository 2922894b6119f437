package linker

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/mohammad-safakhou/storyline/internal/cluster"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/models"
)

// MetadataSource loads the per-story snapshots the linker scores against.
type MetadataSource interface {
	// StoryMetadata returns the topic/entity sets and mean member-article
	// embedding (for the given model) of one story.
	StoryMetadata(ctx context.Context, storyID, embeddingModel string) (models.StoryMetadata, error)
	// StoriesOnDate returns the metadata of every story whose period is the
	// given date (YYYY-MM-DD).
	StoriesOnDate(ctx context.Context, date, embeddingModel string) ([]models.StoryMetadata, error)
	// StoryDigests returns title/summary/key-point digests in the same
	// order as the requested ids.
	StoryDigests(ctx context.Context, ids []string) ([]models.StoryDigest, error)
}

// GroupingOracle asserts same-event correspondence between two story lists.
// It is opaque: returned indices must be bounds-checked by the caller.
type GroupingOracle interface {
	GroupStories(ctx context.Context, groupA, groupB []models.StoryDigest) ([]models.GroupPair, error)
}

// Linker retrieves similarity-ranked candidate stories from a prior period
// and confirms cross-day links through the grouping oracle.
type Linker struct {
	source  MetadataSource
	oracle  GroupingOracle
	logger  *log.Logger
	metrics *runtime.Metrics
}

// New builds a linker. metrics may be nil; oracle may be nil when only
// GetSimilarStories is used.
func New(source MetadataSource, oracle GroupingOracle, logger *log.Logger, metrics *runtime.Metrics) *Linker {
	if logger == nil {
		logger = log.New(log.Writer(), "[LINKER] ", log.LstdFlags)
	}
	return &Linker{source: source, oracle: oracle, logger: logger, metrics: metrics}
}

// GetSimilarStories scores every story on targetDate against the input story
// and returns the top n by combined similarity. The input story itself is
// excluded from the candidates.
func (l *Linker) GetSimilarStories(ctx context.Context, storyID, targetDate string, n int, embeddingModel string) ([]models.SimilarityCandidate, error) {
	if n <= 0 {
		return nil, nil
	}
	input, err := l.source.StoryMetadata(ctx, storyID, embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("loading story %s metadata: %w", storyID, err)
	}
	candidates, err := l.source.StoriesOnDate(ctx, targetDate, embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("loading candidate stories for %s: %w", targetDate, err)
	}

	inputEntities := unionSets(input.LocationQIDs, input.PersonQIDs)
	scored := make([]models.SimilarityCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.StoryID == storyID {
			continue
		}
		embSim := 0.0
		if len(input.Embedding) > 0 && len(cand.Embedding) > 0 {
			embSim = cluster.Cosine(input.Embedding, cand.Embedding)
		}
		topicSim := jaccard(input.Topics, cand.Topics)
		entitySim := jaccard(inputEntities, unionSets(cand.LocationQIDs, cand.PersonQIDs))
		scored = append(scored, models.SimilarityCandidate{
			StoryID:             cand.StoryID,
			SimilarityScore:     embeddingWeight*embSim + topicWeight*topicSim + entityWeight*entitySim,
			EmbeddingSimilarity: embSim,
			TopicSimilarity:     topicSim,
			EntitySimilarity:    entitySim,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].SimilarityScore != scored[j].SimilarityScore {
			return scored[i].SimilarityScore > scored[j].SimilarityScore
		}
		return scored[i].StoryID < scored[j].StoryID
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

// LinkStories pools the top candidates from previousDate for each of today's
// stories and asks the grouping oracle which pairs describe the same event.
// Oracle pairs with out-of-range indices are skipped with a warning, never
// failing the run. Returned links are directed older -> newer.
func (l *Linker) LinkStories(ctx context.Context, todayStories []models.StoryDigest, previousDate string, nCandidates int, embeddingModel string) ([]models.StoryLink, error) {
	if len(todayStories) == 0 {
		return nil, nil
	}
	if l.oracle == nil {
		return nil, fmt.Errorf("no grouping oracle configured")
	}

	seen := make(map[string]struct{})
	var poolIDs []string
	for _, st := range todayStories {
		candidates, err := l.GetSimilarStories(ctx, st.ID, previousDate, nCandidates, embeddingModel)
		if err != nil {
			return nil, fmt.Errorf("candidates for story %s: %w", st.ID, err)
		}
		for _, cand := range candidates {
			if _, ok := seen[cand.StoryID]; ok {
				continue
			}
			seen[cand.StoryID] = struct{}{}
			poolIDs = append(poolIDs, cand.StoryID)
		}
	}
	if len(poolIDs) == 0 {
		l.logger.Printf("no candidate stories on %s", previousDate)
		return nil, nil
	}

	pool, err := l.source.StoryDigests(ctx, poolIDs)
	if err != nil {
		return nil, fmt.Errorf("loading candidate digests: %w", err)
	}

	pairs, err := l.oracle.GroupStories(ctx, pool, todayStories)
	if err != nil {
		return nil, fmt.Errorf("grouping oracle: %w", err)
	}

	var links []models.StoryLink
	for _, pair := range pairs {
		if pair.GroupAIndex < 0 || pair.GroupAIndex >= len(pool) ||
			pair.GroupBIndex < 0 || pair.GroupBIndex >= len(todayStories) {
			l.logger.Printf("warn: oracle returned out-of-range pair (%d, %d), skipping", pair.GroupAIndex, pair.GroupBIndex)
			continue
		}
		links = append(links, models.StoryLink{
			StoryID1: pool[pair.GroupAIndex].ID,
			StoryID2: todayStories[pair.GroupBIndex].ID,
		})
	}
	return links, nil
}
