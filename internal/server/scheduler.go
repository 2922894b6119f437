package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/storyline/internal/linker"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/internal/store"
)

// LinkScheduler runs the cross-day link pass on a cron schedule, linking
// today's stories back to the lookback date.
type LinkScheduler struct {
	Store          *store.Store
	Linker         *linker.Linker
	Metrics        *runtime.Metrics
	Rdb            *redis.Client
	Logger         *log.Logger
	Cron           string
	EmbeddingModel string
	TopN           int
	LookbackDays   int
	Overwrite      bool
	Stop           chan struct{}

	lastRun *time.Time
}

func (s *LinkScheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *LinkScheduler) tick() {
	if !isDue(s.Cron, s.lastRun) {
		return
	}
	ctx := context.Background()
	today := time.Now().UTC().Format("2006-01-02")
	older := time.Now().UTC().AddDate(0, 0, -s.LookbackDays).Format("2006-01-02")

	// distributed lock to avoid duplicate passes across replicas
	if s.Rdb != nil {
		lockKey := "storyline:link:lock:" + older + ":" + today
		ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, lockKey)
	}

	now := time.Now()
	s.lastRun = &now
	if _, err := RunLinkPass(ctx, s.Store, s.Linker, s.Metrics, s.Logger, older, today, s.TopN, s.EmbeddingModel, s.Overwrite); err != nil {
		s.Logger.Printf("link pass failed: %v", err)
	}
}

// isDue determines whether the pass with cronSpec should run now given the
// last run time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions. An invalid expression falls back to @daily.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
