package server

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/storyline/internal/linker"
	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/internal/store"
)

// RunLinkPass links the stories of dateNewer back to dateOlder and persists
// the confirmed edges. With overwrite the date pair's previous links are
// dropped first. Returns the number of links saved.
func RunLinkPass(ctx context.Context, st *store.Store, lk *linker.Linker, metrics *runtime.Metrics, logger *log.Logger, dateOlder, dateNewer string, topN int, embeddingModel string, overwrite bool) (int, error) {
	metas, err := st.StoriesOnDate(ctx, dateNewer, embeddingModel)
	if err != nil {
		return 0, fmt.Errorf("loading stories for %s: %w", dateNewer, err)
	}
	if len(metas) == 0 {
		logger.Printf("no stories on %s, nothing to link", dateNewer)
		return 0, nil
	}
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.StoryID
	}
	digests, err := st.StoryDigests(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("loading digests for %s: %w", dateNewer, err)
	}

	links, err := lk.LinkStories(ctx, digests, dateOlder, topN, embeddingModel)
	if err != nil {
		return 0, fmt.Errorf("linking %s -> %s: %w", dateOlder, dateNewer, err)
	}

	if overwrite {
		if err := st.DeleteStoryLinks(ctx, dateOlder, dateNewer); err != nil {
			return 0, err
		}
	}
	saved, err := st.SaveStoryLinks(ctx, dateOlder, dateNewer, links)
	if err != nil {
		return saved, err
	}
	metrics.AddLinksSaved(saved)
	logger.Printf("linked %s -> %s: %d confirmed, %d saved", dateOlder, dateNewer, len(links), saved)
	return saved, nil
}
