package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/middleware"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// StoryHandler handles ephemeral content HTTP requests
type StoryHandler struct {
	engine *engine.Service
}

// NewStoryHandler creates a new StoryHandler
func NewStoryHandler(eng *engine.Service) *StoryHandler {
	return &StoryHandler{engine: eng}
}

// RegisterStoryRoutes registers story-related routes
func (h *StoryHandler) RegisterStoryRoutes(g *echo.Group) {
	g.POST("/stories", h.Create)
	g.GET("/stories/feed", h.Feed)
	g.POST("/stories/:storyId/seen", h.MarkSeen)
}

// Create posts a story. The client supplies a correlation id so its
// optimistic local entry can be reconciled with the confirmation event.
func (h *StoryHandler) Create(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req models.CreateStoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	story, err := h.engine.CreateStory(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, story)
}

// Feed returns the active stories visible to the viewer under each owner's
// content scope.
func (h *StoryHandler) Feed(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	feed, err := h.engine.StoryFeed(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stories": feed})
}

// MarkSeen records that the viewer watched a story. Idempotent.
func (h *StoryHandler) MarkSeen(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	storyID := c.Param("storyId")
	if storyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid storyId")
	}

	if err := h.engine.MarkStorySeen(c.Request().Context(), userID, storyID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
