package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/storyline/models"
)

// Store wraps the Postgres connection for story persistence.
type Store struct {
	DB *sql.DB
}

// New wraps an existing connection.
func New(db *sql.DB) *Store { return &Store{DB: db} }

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// vectorLiteral renders a float slice as a pgvector literal.
func vectorLiteral(vec []float64) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector decodes a pgvector text literal. Empty input yields nil.
func parseVector(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %d: %w", i, err)
		}
		vec[i] = v
	}
	return vec, nil
}

// SaveStories persists one run's stories for a period date. Duplicate story
// ids are a no-op so re-running a period is safe.
func (s *Store) SaveStories(ctx context.Context, periodDate string, stories []models.Story, embeddingModel string) error {
	if len(stories) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save stories: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO stories (id, period_date, title, article_count, sources, top_entities, locations, embedding_model, story_embedding, start_published_at, end_published_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::vector,$10,$11,$12)
ON CONFLICT (id) DO NOTHING;
`)
	if err != nil {
		return fmt.Errorf("prepare story insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stories {
		sources, err := json.Marshal(st.Sources)
		if err != nil {
			return fmt.Errorf("encoding sources for %s: %w", st.ID, err)
		}
		entities, err := json.Marshal(st.TopEntities)
		if err != nil {
			return fmt.Errorf("encoding entities for %s: %w", st.ID, err)
		}
		locations, err := json.Marshal(st.Locations)
		if err != nil {
			return fmt.Errorf("encoding locations for %s: %w", st.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			st.ID, periodDate, st.Title, st.ArticleCount, sources, entities, locations,
			embeddingModel, vectorLiteral(st.Embedding), st.StartPublishedAt, st.EndPublishedAt, st.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting story %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// ReplaceArticleStoryMap writes the article assignments for a period date.
// With overwrite the period's previous rows are deleted first; otherwise
// existing rows win.
func (s *Store) ReplaceArticleStoryMap(ctx context.Context, periodDate string, rows []models.ArticleStoryMap, overwrite bool) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace article map: %w", err)
	}
	defer tx.Rollback()

	if overwrite {
		if _, err := tx.ExecContext(ctx, `DELETE FROM article_story_map WHERE period_date=$1`, periodDate); err != nil {
			return fmt.Errorf("clearing article map for %s: %w", periodDate, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO article_story_map (article_id, period_date, story_id, cluster_label, assigned_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (article_id, period_date) DO NOTHING;
`)
	if err != nil {
		return fmt.Errorf("prepare article map insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var storyID sql.NullString
		if row.StoryID != nil {
			storyID = sql.NullString{String: *row.StoryID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, row.ArticleID, periodDate, storyID, row.ClusterLabel, row.AssignedAt); err != nil {
			return fmt.Errorf("inserting article map row %s: %w", row.ArticleID, err)
		}
	}
	return tx.Commit()
}

// SaveStoryLinks inserts directed story links for a date pair. Duplicate
// edges are a no-op. Returns the number of newly inserted links.
func (s *Store) SaveStoryLinks(ctx context.Context, dateOlder, dateNewer string, links []models.StoryLink) (int, error) {
	inserted := 0
	for _, link := range links {
		res, err := s.DB.ExecContext(ctx, `
INSERT INTO story_links (story_id_1, story_id_2, date_1, date_2, created_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (story_id_1, story_id_2) DO NOTHING;
`, link.StoryID1, link.StoryID2, dateOlder, dateNewer)
		if err != nil {
			return inserted, fmt.Errorf("inserting link %s -> %s: %w", link.StoryID1, link.StoryID2, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// DeleteStoryLinks removes every link recorded for a date pair, supporting
// safe re-runs under an explicit overwrite.
func (s *Store) DeleteStoryLinks(ctx context.Context, dateA, dateB string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM story_links WHERE date_1=$1 AND date_2=$2`, dateA, dateB); err != nil {
		return fmt.Errorf("deleting links for (%s, %s): %w", dateA, dateB, err)
	}
	return nil
}

// LinksForStory returns every link touching the story, in insertion order.
func (s *Store) LinksForStory(ctx context.Context, storyID string) ([]models.StoryLink, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT story_id_1, story_id_2 FROM story_links
WHERE story_id_1=$1 OR story_id_2=$1
ORDER BY created_at
`, storyID)
	if err != nil {
		return nil, fmt.Errorf("querying links for %s: %w", storyID, err)
	}
	defer rows.Close()

	var links []models.StoryLink
	for rows.Next() {
		var l models.StoryLink
		if err := rows.Scan(&l.StoryID1, &l.StoryID2); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// StoryMetadata loads the linker snapshot for one story: topic and entity
// sets plus the mean member embedding for the given model.
func (s *Store) StoryMetadata(ctx context.Context, storyID, embeddingModel string) (models.StoryMetadata, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT s.id, COALESCE(s.topics, '[]'), COALESCE(s.location_qids, '[]'), COALESCE(s.person_qids, '[]'), COALESCE(e.embedding::text, '')
FROM stories s
LEFT JOIN story_mean_embeddings e ON e.story_id = s.id AND e.embedding_model = $2
WHERE s.id = $1
`, storyID, embeddingModel)
	meta, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoryMetadata{}, models.ErrStoryNotFound
	}
	return meta, err
}

// StoriesOnDate loads the linker snapshots of every story on a period date.
func (s *Store) StoriesOnDate(ctx context.Context, date, embeddingModel string) ([]models.StoryMetadata, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT s.id, COALESCE(s.topics, '[]'), COALESCE(s.location_qids, '[]'), COALESCE(s.person_qids, '[]'), COALESCE(e.embedding::text, '')
FROM stories s
LEFT JOIN story_mean_embeddings e ON e.story_id = s.id AND e.embedding_model = $2
WHERE s.period_date = $1
ORDER BY s.id
`, date, embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("querying stories on %s: %w", date, err)
	}
	defer rows.Close()

	var out []models.StoryMetadata
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetadata(row rowScanner) (models.StoryMetadata, error) {
	var meta models.StoryMetadata
	var topics, locationQIDs, personQIDs []byte
	var embedding string
	if err := row.Scan(&meta.StoryID, &topics, &locationQIDs, &personQIDs, &embedding); err != nil {
		return models.StoryMetadata{}, err
	}
	var err error
	if meta.Topics, err = decodeStringSet(topics); err != nil {
		return models.StoryMetadata{}, fmt.Errorf("decoding topics for %s: %w", meta.StoryID, err)
	}
	if meta.LocationQIDs, err = decodeStringSet(locationQIDs); err != nil {
		return models.StoryMetadata{}, fmt.Errorf("decoding location qids for %s: %w", meta.StoryID, err)
	}
	if meta.PersonQIDs, err = decodeStringSet(personQIDs); err != nil {
		return models.StoryMetadata{}, fmt.Errorf("decoding person qids for %s: %w", meta.StoryID, err)
	}
	if meta.Embedding, err = parseVector(embedding); err != nil {
		return models.StoryMetadata{}, fmt.Errorf("decoding embedding for %s: %w", meta.StoryID, err)
	}
	return meta, nil
}

func decodeStringSet(raw []byte) (map[string]struct{}, error) {
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set, nil
}

// StoryDigests loads title/summary/key-point digests in the order of the
// requested ids. Missing ids are skipped.
func (s *Store) StoryDigests(ctx context.Context, ids []string) ([]models.StoryDigest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, COALESCE(summary, ''), COALESCE(key_points, '[]')
FROM stories WHERE id = ANY($1)
`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying story digests: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.StoryDigest, len(ids))
	for rows.Next() {
		var d models.StoryDigest
		var keyPoints []byte
		if err := rows.Scan(&d.ID, &d.Title, &d.Summary, &keyPoints); err != nil {
			return nil, fmt.Errorf("scanning story digest: %w", err)
		}
		if err := json.Unmarshal(keyPoints, &d.KeyPoints); err != nil {
			return nil, fmt.Errorf("decoding key points for %s: %w", d.ID, err)
		}
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.StoryDigest, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// StoriesByDate loads full story records for the API.
func (s *Store) StoriesByDate(ctx context.Context, date string) ([]models.Story, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, article_count, sources, top_entities, locations, start_published_at, end_published_at, created_at
FROM stories WHERE period_date = $1
ORDER BY article_count DESC, id
`, date)
	if err != nil {
		return nil, fmt.Errorf("querying stories for %s: %w", date, err)
	}
	defer rows.Close()

	var out []models.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Story loads one story record.
func (s *Store) Story(ctx context.Context, storyID string) (models.Story, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, title, article_count, sources, top_entities, locations, start_published_at, end_published_at, created_at
FROM stories WHERE id = $1
`, storyID)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Story{}, models.ErrStoryNotFound
	}
	return st, err
}

func scanStory(row rowScanner) (models.Story, error) {
	var st models.Story
	var sources, entities, locations []byte
	var start, end, created time.Time
	if err := row.Scan(&st.ID, &st.Title, &st.ArticleCount, &sources, &entities, &locations, &start, &end, &created); err != nil {
		return models.Story{}, err
	}
	if err := json.Unmarshal(sources, &st.Sources); err != nil {
		return models.Story{}, fmt.Errorf("decoding sources for %s: %w", st.ID, err)
	}
	if err := json.Unmarshal(entities, &st.TopEntities); err != nil {
		return models.Story{}, fmt.Errorf("decoding entities for %s: %w", st.ID, err)
	}
	if err := json.Unmarshal(locations, &st.Locations); err != nil {
		return models.Story{}, fmt.Errorf("decoding locations for %s: %w", st.ID, err)
	}
	st.StartPublishedAt, st.EndPublishedAt, st.CreatedAt = start, end, created
	return st, nil
}

// LocationAliases loads the full location alias table, keyed by uppercase
// alias.
func (s *Store) LocationAliases(ctx context.Context) (map[string][]models.LocationCandidate, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT alias, wikidata_qid, name, location_type, COALESCE(country_code, '')
FROM location_alias_candidates
ORDER BY alias, wikidata_qid
`)
	if err != nil {
		return nil, fmt.Errorf("querying location aliases: %w", err)
	}
	defer rows.Close()

	table := make(map[string][]models.LocationCandidate)
	for rows.Next() {
		var alias string
		var c models.LocationCandidate
		if err := rows.Scan(&alias, &c.WikidataQID, &c.Name, &c.Type, &c.CountryCode); err != nil {
			return nil, fmt.Errorf("scanning location alias: %w", err)
		}
		table[alias] = append(table[alias], c)
	}
	return table, rows.Err()
}

// PersonAliases loads the full person alias table, keyed by uppercase alias.
func (s *Store) PersonAliases(ctx context.Context) (map[string][]models.PersonCandidate, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT alias, wikidata_qid, name, COALESCE(nationalities, '{}')
FROM person_alias_candidates
ORDER BY alias, wikidata_qid
`)
	if err != nil {
		return nil, fmt.Errorf("querying person aliases: %w", err)
	}
	defer rows.Close()

	table := make(map[string][]models.PersonCandidate)
	for rows.Next() {
		var alias string
		var c models.PersonCandidate
		if err := rows.Scan(&alias, &c.WikidataQID, &c.Name, pq.Array(&c.Nationalities)); err != nil {
			return nil, fmt.Errorf("scanning person alias: %w", err)
		}
		table[alias] = append(table[alias], c)
	}
	return table, rows.Err()
}

// UpdateStoryQIDs writes the resolved location and person QID sets onto a
// story row, where the cross-day linker picks them up.
func (s *Store) UpdateStoryQIDs(ctx context.Context, storyID string, locationQIDs, personQIDs []string) error {
	locs, err := json.Marshal(locationQIDs)
	if err != nil {
		return fmt.Errorf("encoding location qids for %s: %w", storyID, err)
	}
	pers, err := json.Marshal(personQIDs)
	if err != nil {
		return fmt.Errorf("encoding person qids for %s: %w", storyID, err)
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE stories SET location_qids=$2, person_qids=$3 WHERE id=$1`, storyID, locs, pers); err != nil {
		return fmt.Errorf("updating qids for %s: %w", storyID, err)
	}
	return nil
}

// SaveStoryMeanEmbedding upserts the mean member embedding for one story and
// model, used by cross-day candidate retrieval.
func (s *Store) SaveStoryMeanEmbedding(ctx context.Context, storyID, embeddingModel string, embedding []float64) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO story_mean_embeddings (story_id, embedding_model, embedding, created_at)
VALUES ($1,$2,$3::vector,NOW())
ON CONFLICT (story_id, embedding_model) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  created_at = NOW();
`, storyID, embeddingModel, vectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("upserting mean embedding for %s: %w", storyID, err)
	}
	return nil
}
