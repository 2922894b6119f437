package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/storyline/models"
)

// Hit is one search result.
type Hit struct {
	StoryID string  `json:"story_id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
}

// storyDoc is the shape bleve indexes per story.
type storyDoc struct {
	Title     string `json:"title"`
	Sources   string `json:"sources"`
	Entities  string `json:"entities"`
	Locations string `json:"locations"`
	Date      string `json:"date"`
}

// Index is an in-memory BM25 index over story records, rebuilt as
// aggregation runs land.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	titles map[string]string
}

// NewIndex builds an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}
	return &Index{index: idx, titles: make(map[string]string)}, nil
}

// IndexStories adds or replaces the given stories under the period date.
func (ix *Index) IndexStories(date string, stories []models.Story) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, st := range stories {
		doc := storyDoc{
			Title:     st.Title,
			Sources:   strings.Join(st.Sources, " "),
			Entities:  entityText(st.TopEntities),
			Locations: locationText(st.Locations),
			Date:      date,
		}
		if err := ix.index.Index(st.ID, doc); err != nil {
			return fmt.Errorf("indexing story %s: %w", st.ID, err)
		}
		ix.titles[st.ID] = st.Title
	}
	return nil
}

// Search runs a query-string search and returns the top k hits.
func (ix *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 || k > 50 {
		k = 10
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching stories: %w", err)
	}
	var out []Hit
	for _, hit := range res.Hits {
		out = append(out, Hit{StoryID: hit.ID, Title: ix.titles[hit.ID], Score: hit.Score})
	}
	return out, nil
}

// Count reports the number of indexed stories.
func (ix *Index) Count() (uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.index.DocCount()
}

func entityText(entities []models.Entity) string {
	var b strings.Builder
	for _, e := range entities {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Name)
	}
	return b.String()
}

func locationText(locations []models.StoryLocation) string {
	var b strings.Builder
	for _, l := range locations {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(l.Name)
		for _, sub := range l.SubEntities {
			b.WriteByte(' ')
			b.WriteString(sub.Name)
		}
	}
	return b.String()
}
