package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/storyline/internal/linker"
	"github.com/mohammad-safakhou/storyline/internal/store"
	"github.com/mohammad-safakhou/storyline/models"
)

// StoriesHandler serves the read API over persisted stories.
type StoriesHandler struct {
	Store          *store.Store
	Linker         *linker.Linker
	EmbeddingModel string
}

// Register mounts the story routes on the given group.
func (h *StoriesHandler) Register(g *echo.Group) {
	g.GET("", h.listByDate)
	g.GET("/:id", h.get)
	g.GET("/:id/links", h.links)
	g.GET("/:id/similar", h.similar)
}

func (h *StoriesHandler) listByDate(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date query parameter required (YYYY-MM-DD)")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	stories, err := h.Store.StoriesByDate(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if stories == nil {
		stories = []models.Story{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"date": date, "stories": stories})
}

func (h *StoriesHandler) get(c echo.Context) error {
	st, err := h.Store.Story(c.Request().Context(), c.Param("id"))
	if errors.Is(err, models.ErrStoryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "story not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StoriesHandler) links(c echo.Context) error {
	links, err := h.Store.LinksForStory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if links == nil {
		links = []models.StoryLink{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"story_id": c.Param("id"), "links": links})
}

func (h *StoriesHandler) similar(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date query parameter required (YYYY-MM-DD)")
	}
	limit := 3
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	candidates, err := h.Linker.GetSimilarStories(c.Request().Context(), c.Param("id"), date, limit, h.EmbeddingModel)
	if errors.Is(err, models.ErrStoryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "story not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if candidates == nil {
		candidates = []models.SimilarityCandidate{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"story_id": c.Param("id"), "candidates": candidates})
}
