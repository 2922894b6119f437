package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/mohammad-safakhou/storyline/config"
	"github.com/mohammad-safakhou/storyline/internal/linker"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/internal/search"
	"github.com/mohammad-safakhou/storyline/internal/store"
)

// Run wires the read API and the scheduled link pass and blocks serving HTTP.
func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	metrics := runtime.NewMetrics()
	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	lk := linker.New(st, nil, log.New(log.Writer(), "[LINKER] ", log.LstdFlags), metrics)

	idx, err := search.NewIndex()
	if err != nil {
		return err
	}
	if err := seedSearchIndex(ctx, st, idx, 7); err != nil {
		return err
	}

	api := e.Group("/api")
	sh := &StoriesHandler{Store: st, Linker: lk, EmbeddingModel: cfg.General.EmbeddingModel}
	sh.Register(api.Group("/stories"))
	qh := &SearchHandler{Index: idx}
	qh.Register(api.Group("/search"))

	// scheduled link pass needs the oracle; skip when not configured
	if cfg.Linker.ScheduleCron != "" {
		if cfg.Linker.APIKey == "" {
			return fmt.Errorf("linker.api_key required when linker.schedule_cron is set")
		}
		oracle, err := linker.NewOpenAIOracle(cfg.Linker.APIKey, cfg.Linker.Model, cfg.Linker.BaseURL)
		if err != nil {
			return err
		}
		var rdb *redis.Client
		if cfg.Storage.Redis.Host != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
			}
		}
		sched := &LinkScheduler{
			Store:          st,
			Linker:         linker.New(st, oracle, nil, metrics),
			Metrics:        metrics,
			Rdb:            rdb,
			Cron:           cfg.Linker.ScheduleCron,
			EmbeddingModel: cfg.General.EmbeddingModel,
			TopN:           cfg.Linker.TopN,
			LookbackDays:   cfg.Linker.LookbackDays,
			Overwrite:      cfg.Linker.OverwriteRuns,
			Stop:           make(chan struct{}),
		}
		sched.Start()
	}

	log.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}

// seedSearchIndex loads the last days of stories into the in-memory index so
// search works immediately after a restart.
func seedSearchIndex(ctx context.Context, st *store.Store, idx *search.Index, days int) error {
	now := time.Now().UTC()
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		stories, err := st.StoriesByDate(ctx, date)
		if err != nil {
			return fmt.Errorf("seeding search index for %s: %w", date, err)
		}
		if err := idx.IndexStories(date, stories); err != nil {
			return err
		}
	}
	return nil
}
