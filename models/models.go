package models

import (
	"errors"
	"time"
)

// ErrStoryNotFound is returned when a story is not found
var ErrStoryNotFound = errors.New("story not found")

// EntityType is the NER label attached to a mention.
type EntityType string

const (
	EntityTypeGPE    EntityType = "GPE"
	EntityTypePerson EntityType = "PERSON"
	EntityTypeOrg    EntityType = "ORG"
	EntityTypeNorp   EntityType = "NORP"
	EntityTypeLoc    EntityType = "LOC"
)

// EntityMention is a raw named-entity mention produced by the upstream NER
// pipeline. Names are normalized to uppercase before they reach us.
type EntityMention struct {
	ArticleID string     `json:"article_id"`
	Type      EntityType `json:"entity_type"`
	Name      string     `json:"entity_name"`
	InTitle   bool       `json:"in_title"`
	Count     int        `json:"count"`
	Aliases   []string   `json:"aliases,omitempty"`
}

// LocationType orders location candidates by administrative level.
type LocationType string

const (
	LocationTypeCountry LocationType = "country"
	LocationTypeState   LocationType = "state"
	LocationTypeCity    LocationType = "city"
)

// Priority returns the disambiguation rank of a location type. Lower wins.
func (t LocationType) Priority() int {
	switch t {
	case LocationTypeCountry:
		return 0
	case LocationTypeState:
		return 1
	case LocationTypeCity:
		return 2
	default:
		return 3
	}
}

// LocationCandidate is an immutable reference-table row for a place alias.
type LocationCandidate struct {
	WikidataQID string       `json:"wikidata_qid"`
	Name        string       `json:"name"`
	Type        LocationType `json:"location_type"`
	CountryCode string       `json:"country_code,omitempty"`
}

// PersonCandidate is an immutable reference-table row for a person alias.
type PersonCandidate struct {
	WikidataQID   string   `json:"wikidata_qid"`
	Name          string   `json:"name"`
	Nationalities []string `json:"nationalities,omitempty"`
}

// ArticleLocation links an article to a resolved place. Multiple rows may
// exist for one (article, alias) pair when ambiguity cannot be narrowed.
type ArticleLocation struct {
	ArticleID   string `json:"article_id"`
	WikidataQID string `json:"wikidata_qid"`
	Name        string `json:"name"`
}

// ArticlePerson links an article to a resolved person.
type ArticlePerson struct {
	ArticleID   string `json:"article_id"`
	WikidataQID string `json:"wikidata_qid"`
	Name        string `json:"name"`
}

// LocationRowKind tags the two shapes location annotations arrive in.
type LocationRowKind string

const (
	// LocationRowCountry is a country object carrying nested sub-entities.
	LocationRowCountry LocationRowKind = "country"
	// LocationRowFlat is a flat row carrying its own location type tag.
	LocationRowFlat LocationRowKind = "flat"
)

// LocationRow is a per-article location annotation. Both upstream shapes are
// normalized into this variant at the ingestion boundary so the aggregation
// logic never branches on key presence.
type LocationRow struct {
	Kind        LocationRowKind `json:"kind"`
	Name        string          `json:"name"`
	CountryCode string          `json:"country_code"`
	Type        LocationType    `json:"location_type,omitempty"`
	Count       int             `json:"count"`
	InHeadline  bool            `json:"in_headline"`
	SubEntities []LocationSub   `json:"sub_entities,omitempty"`
}

// LocationSub is a nested region/city mention under a country row.
type LocationSub struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	InHeadline bool   `json:"in_headline"`
}

// Article is the input snapshot for one ingested article. Immutable for the
// duration of a run.
type Article struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Headline    string          `json:"headline"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Embedding   []float64       `json:"embedding,omitempty"`
	Entities    []EntityMention `json:"entities,omitempty"`
	Locations   []LocationRow   `json:"locations,omitempty"`
	Persons     []ArticlePerson `json:"persons,omitempty"`
}

// Entity is an aggregated (name, type) mention count on a story.
type Entity struct {
	Name  string     `json:"name"`
	Type  EntityType `json:"type"`
	Count int        `json:"count"`
}

// StorySubEntity is a region or city rolled up under a story location.
type StorySubEntity struct {
	Name            string  `json:"name"`
	MentionCount    int     `json:"mention_count"`
	InHeadlineRatio float64 `json:"in_headline_ratio"`
}

// StoryLocation is a country-level rollup with confidence in [0,1].
type StoryLocation struct {
	Name            string           `json:"name"`
	CountryCode     string           `json:"country_code"`
	Confidence      float64          `json:"confidence"`
	MentionCount    int              `json:"mention_count"`
	InHeadlineRatio float64          `json:"in_headline_ratio"`
	SubEntities     []StorySubEntity `json:"sub_entities,omitempty"`
}

// Story is one deduplicated cluster of articles. Created once per non-noise
// cluster per run and never mutated afterwards within that run.
type Story struct {
	ID               string          `json:"story_id"`
	Title            string          `json:"title"`
	ArticleCount     int             `json:"article_count"`
	Sources          []string        `json:"sources"`
	TopEntities      []Entity        `json:"top_entities,omitempty"`
	Locations        []StoryLocation `json:"locations,omitempty"`
	Embedding        []float64       `json:"story_embedding,omitempty"`
	StartPublishedAt time.Time       `json:"start_published_at"`
	EndPublishedAt   time.Time       `json:"end_published_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ArticleSummary is a denormalized member-article view carried on a story.
type ArticleSummary struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Headline    string     `json:"headline"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// StoryArticles is the denormalized story -> member articles view.
type StoryArticles struct {
	StoryID  string           `json:"story_id"`
	Articles []ArticleSummary `json:"articles"`
}

// NoiseLabel is the cluster label assigned to articles outside any cluster.
const NoiseLabel = -1

// ArticleStoryMap records the cluster assignment for one article in a run.
// StoryID is nil exactly when ClusterLabel is NoiseLabel.
type ArticleStoryMap struct {
	ArticleID    string    `json:"article_id"`
	StoryID      *string   `json:"story_id,omitempty"`
	ClusterLabel int       `json:"cluster_label"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// StoryLink is a directed same-event edge between two stories. StoryID1 is
// the older story, StoryID2 the newer.
type StoryLink struct {
	StoryID1 string `json:"story_id_1"`
	StoryID2 string `json:"story_id_2"`
}

// SimilarityCandidate is an ephemeral scoring result from cross-day
// candidate retrieval. Never persisted.
type SimilarityCandidate struct {
	StoryID             string  `json:"story_id"`
	SimilarityScore     float64 `json:"similarity_score"`
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	TopicSimilarity     float64 `json:"topic_similarity"`
	EntitySimilarity    float64 `json:"entity_similarity"`
}

// StoryMetadata is the per-story snapshot the linker scores against: topic
// and entity sets plus the mean member-article embedding for one embedding
// model. Embedding is nil when no member vector exists for that model.
type StoryMetadata struct {
	StoryID      string              `json:"story_id"`
	Topics       map[string]struct{} `json:"-"`
	LocationQIDs map[string]struct{} `json:"-"`
	PersonQIDs   map[string]struct{} `json:"-"`
	Embedding    []float64           `json:"embedding,omitempty"`
}

// StoryDigest is the compact story view handed to the grouping oracle.
type StoryDigest struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// GroupPair is one same-event assertion from the grouping oracle, as indices
// into the two digest lists it was handed. Indices must be bounds-checked by
// the caller.
type GroupPair struct {
	GroupAIndex int `json:"group_a_index"`
	GroupBIndex int `json:"group_b_index"`
}
