package search

import (
	"testing"

	"github.com/mohammad-safakhou/storyline/models"
)

func TestIndexAndSearch(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	stories := []models.Story{
		{
			ID:      "story_paris01",
			Title:   "Protests erupt in Paris over pension reform",
			Sources: []string{"ap", "reuters"},
			Locations: []models.StoryLocation{
				{Name: "France", CountryCode: "FR", SubEntities: []models.StorySubEntity{{Name: "Paris"}}},
			},
		},
		{
			ID:      "story_tokyo01",
			Title:   "Tokyo markets rally on tech earnings",
			Sources: []string{"nikkei"},
		},
	}
	if err := ix.IndexStories("2024-03-01", stories); err != nil {
		t.Fatalf("IndexStories: %v", err)
	}
	if n, _ := ix.Count(); n != 2 {
		t.Fatalf("expected 2 docs, got %d", n)
	}

	hits, err := ix.Search("pension reform", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].StoryID != "story_paris01" {
		t.Fatalf("expected paris story first, got %v", hits)
	}
	if hits[0].Title == "" {
		t.Fatalf("hit must carry the story title")
	}
}

func TestSearchByLocation(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	err = ix.IndexStories("2024-03-01", []models.Story{
		{
			ID:    "story_berlin1",
			Title: "Chancellor addresses parliament",
			Locations: []models.StoryLocation{
				{Name: "Germany", CountryCode: "DE", SubEntities: []models.StorySubEntity{{Name: "Berlin"}}},
			},
		},
	})
	if err != nil {
		t.Fatalf("IndexStories: %v", err)
	}

	hits, err := ix.Search("Berlin", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].StoryID != "story_berlin1" {
		t.Fatalf("expected berlin story, got %v", hits)
	}
}

func TestIndexReplacesStory(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	first := []models.Story{{ID: "story_x", Title: "Old title"}}
	second := []models.Story{{ID: "story_x", Title: "Updated headline on floods"}}
	if err := ix.IndexStories("2024-03-01", first); err != nil {
		t.Fatalf("IndexStories: %v", err)
	}
	if err := ix.IndexStories("2024-03-01", second); err != nil {
		t.Fatalf("IndexStories: %v", err)
	}
	if n, _ := ix.Count(); n != 1 {
		t.Fatalf("reindex must replace, got %d docs", n)
	}
	hits, err := ix.Search("floods", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Updated headline on floods" {
		t.Fatalf("expected updated doc, got %v", hits)
	}
}
