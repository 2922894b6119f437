package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/storyline/config"
	"github.com/mohammad-safakhou/storyline/internal/cluster"
	"github.com/mohammad-safakhou/storyline/internal/resolver"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/internal/store"
	"github.com/mohammad-safakhou/storyline/internal/story"
	"github.com/mohammad-safakhou/storyline/models"
)

func aggregateCMD() *cobra.Command {
	var input string
	var date string
	var overwrite bool
	var cfgPath string

	var aggregate = &cobra.Command{
		Use:   "aggregate",
		Short: "Cluster one day's articles into stories and persist them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if date == "" {
				date = time.Now().UTC().Format("2006-01-02")
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
			}

			raw, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("reading articles file: %w", err)
			}
			var articles []models.Article
			if err := json.Unmarshal(raw, &articles); err != nil {
				return fmt.Errorf("decoding articles file: %w", err)
			}
			if len(articles) == 0 {
				return fmt.Errorf("no articles in %s", input)
			}

			logger := log.New(log.Writer(), "[AGGREGATE] ", log.LstdFlags)
			metrics := runtime.NewMetrics()
			ctx := context.Background()
			runID := uuid.NewString()
			logger.Printf("run %s: %d articles for %s", runID, len(articles), date)

			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			defer st.DB.Close()

			start := time.Now()

			locQIDs, perQIDs, err := resolveEntities(ctx, cfg, st, metrics, articles)
			if err != nil {
				return err
			}

			agg := story.NewAggregator(&cluster.HDBSCAN{AllowSingleCluster: cfg.Clustering.AllowSingleCluster}, logger, metrics)
			stories, mapping, _, err := agg.BuildStories(articles, story.Params{
				MinClusterSize:        cfg.Clustering.MinClusterSize,
				MinSamples:            cfg.Clustering.MinSamples,
				LocationMinConfidence: cfg.Locations.MinConfidence,
				MaxLocations:          cfg.Locations.MaxLocations,
				MaxRegions:            cfg.Locations.MaxRegions,
				MaxCities:             cfg.Locations.MaxCities,
			})
			if err != nil {
				return err
			}

			if err := st.SaveStories(ctx, date, stories, cfg.General.EmbeddingModel); err != nil {
				return err
			}
			if err := st.ReplaceArticleStoryMap(ctx, date, mapping, overwrite); err != nil {
				return err
			}
			for _, s := range stories {
				if err := st.SaveStoryMeanEmbedding(ctx, s.ID, cfg.General.EmbeddingModel, s.Embedding); err != nil {
					return err
				}
			}
			if err := saveStoryQIDs(ctx, st, mapping, locQIDs, perQIDs); err != nil {
				return err
			}

			metrics.ObserveRunDuration(time.Since(start).Seconds())
			logger.Printf("run complete for %s: %d stories from %d articles in %s", date, len(stories), len(articles), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	aggregate.Flags().StringVar(&input, "input", "", "JSON file of the day's articles (required)")
	aggregate.Flags().StringVar(&date, "date", "", "period date YYYY-MM-DD (default today UTC)")
	aggregate.Flags().BoolVar(&overwrite, "overwrite", false, "replace the period's previous article assignments")
	aggregate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = aggregate.MarkFlagRequired("input")

	return aggregate
}

// resolveEntities runs alias resolution over the articles' raw mentions and
// returns resolved location and person QIDs grouped by article.
func resolveEntities(ctx context.Context, cfg *config.Config, st *store.Store, metrics *runtime.Metrics, articles []models.Article) (map[string][]string, map[string][]string, error) {
	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}
	ref := resolver.NewRefData(st, rdb, cfg.Storage.Redis.TTL, nil)
	tables, err := ref.Tables(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading alias tables: %w", err)
	}

	var gpe, persons []models.EntityMention
	for _, a := range articles {
		for _, m := range a.Entities {
			switch m.Type {
			case models.EntityTypeGPE, models.EntityTypeLoc:
				gpe = append(gpe, m)
			case models.EntityTypePerson:
				persons = append(persons, m)
			}
		}
	}
	locs, pers := resolver.New(nil, metrics).Resolve(gpe, persons, tables)

	locQIDs := make(map[string][]string)
	for _, l := range locs {
		locQIDs[l.ArticleID] = append(locQIDs[l.ArticleID], l.WikidataQID)
	}
	perQIDs := make(map[string][]string)
	for _, p := range pers {
		perQIDs[p.ArticleID] = append(perQIDs[p.ArticleID], p.WikidataQID)
	}
	return locQIDs, perQIDs, nil
}

// saveStoryQIDs rolls per-article resolved QIDs up to their stories.
func saveStoryQIDs(ctx context.Context, st *store.Store, mapping []models.ArticleStoryMap, locQIDs, perQIDs map[string][]string) error {
	locByStory := make(map[string]map[string]struct{})
	perByStory := make(map[string]map[string]struct{})
	for _, row := range mapping {
		if row.StoryID == nil {
			continue
		}
		id := *row.StoryID
		for _, q := range locQIDs[row.ArticleID] {
			if locByStory[id] == nil {
				locByStory[id] = make(map[string]struct{})
			}
			locByStory[id][q] = struct{}{}
		}
		for _, q := range perQIDs[row.ArticleID] {
			if perByStory[id] == nil {
				perByStory[id] = make(map[string]struct{})
			}
			perByStory[id][q] = struct{}{}
		}
	}

	stories := make(map[string]struct{})
	for _, row := range mapping {
		if row.StoryID != nil {
			stories[*row.StoryID] = struct{}{}
		}
	}
	for id := range stories {
		if err := st.UpdateStoryQIDs(ctx, id, sortedKeys(locByStory[id]), sortedKeys(perByStory[id])); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
